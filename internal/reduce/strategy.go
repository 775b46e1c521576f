// Package reduce implements the sum strategies the benchmark compares.
//
// Every strategy is set up once per (strategy, input) pair. Setup plans the
// dispatches, compiles specialized pipelines and allocates the buffers the
// strategy owns; the returned Runner sums the input on every Run call and
// releases its buffers on Release.
package reduce

import (
	"context"
	"fmt"
	"time"

	"github.com/born-ml/reducebench/internal/device"
	"github.com/born-ml/reducebench/internal/dispatch"
	"github.com/born-ml/reducebench/internal/input"
)

// Kind identifies one strategy variant.
type Kind int

// Strategy variants, in benchmark order.
const (
	CPU Kind = iota
	Atomic
	Tile
	Vector
	Recursive
	Subgroup
	SubgroupTile
)

var kindNames = [...]string{
	CPU:          "cpu",
	Atomic:       "atomic",
	Tile:         "tile",
	Vector:       "vector",
	Recursive:    "recursive",
	Subgroup:     "subgroup",
	SubgroupTile: "subgroup-tile",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Result is the outcome of one Run.
type Result struct {
	Value     uint32  // The sum, modulo 2^32.
	ElapsedMs float64 // Wall time of the run, including readback.
}

// Options tune strategy setup.
type Options struct {
	// MaxWorkgroupSize overrides the preferred workgroup size of 64.
	MaxWorkgroupSize uint32
}

const (
	preferredWorkgroupSize = 64
	maxWorkgroupsPerTile   = 32
	maxVectorTiles         = 8
)

// Runner sums one input repeatedly.
//
// Run is idempotent: every call on the same Runner returns the same Value.
// Runners are not safe for concurrent use.
type Runner interface {
	// Run performs one full sum, including result readback.
	Run(ctx context.Context) (Result, error)

	// Plans returns the dispatch plans the runner executes (empty for CPU).
	Plans() []dispatch.Plan

	// Release frees the runner's device buffers.
	Release()
}

// Strategy is one way to sum an input.
type Strategy interface {
	// Name returns the stable display name.
	Name() string

	// Kind returns the variant tag.
	Kind() Kind

	// RequiresSubgroups reports whether the strategy needs hardware
	// subgroup reduction.
	RequiresSubgroups() bool

	// Plan derives the dispatch plans Setup would use for n elements.
	Plan(n uint32, limits dispatch.Limits, opts Options) ([]dispatch.Plan, error)

	// Setup binds the strategy to in on session s.
	Setup(ctx context.Context, s device.Session, in input.Array, opts Options) (Runner, error)
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e6
}
