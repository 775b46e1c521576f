// Package report aggregates benchmark timings and renders them.
//
// The orchestrator produces one Cell per (strategy, element count) and one
// SizeSummary per element count. Collector gathers them into a Document,
// which can be rendered as a terminal table, exported as JSON or YAML, or
// plotted.
package report

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Stage is a step of the orchestrator's state machine.
type Stage int

// Orchestrator stages.
const (
	Idle Stage = iota
	GeneratingInput
	Setup
	WarmUp
	Running
	Recording
)

var stageNames = [...]string{
	Idle:            "idle",
	GeneratingInput: "generating input",
	Setup:           "setup",
	WarmUp:          "warm-up",
	Running:         "running",
	Recording:       "recording",
}

// String implements fmt.Stringer.
func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// CellState is the lifecycle of one benchmark cell.
type CellState string

// Cell states.
const (
	CellReady     CellState = "ready"
	CellRunning   CellState = "running"
	CellCompleted CellState = "completed"
	CellError     CellState = "error"
)

// Stats summarizes the timed runs of one cell.
type Stats struct {
	Runs    int     `json:"runs" yaml:"runs"`
	TotalMs float64 `json:"totalMs" yaml:"totalMs"`
	MinMs   float64 `json:"minMs" yaml:"minMs"`
	MaxMs   float64 `json:"maxMs" yaml:"maxMs"`
}

// Add records one run.
func (s *Stats) Add(ms float64) {
	if s.Runs == 0 {
		s.MinMs, s.MaxMs = ms, ms
	} else {
		s.MinMs = math.Min(s.MinMs, ms)
		s.MaxMs = math.Max(s.MaxMs, ms)
	}
	s.Runs++
	s.TotalMs += ms
}

// Mean returns the mean run time, or 0 without runs.
func (s Stats) Mean() float64 {
	if s.Runs == 0 {
		return 0
	}
	return s.TotalMs / float64(s.Runs)
}

// Cell is the outcome of one strategy at one element count.
type Cell struct {
	Strategy     string    `json:"strategy" yaml:"strategy"`
	ElementCount uint32    `json:"elementCount" yaml:"elementCount"`
	State        CellState `json:"state" yaml:"state"`
	MeanMs       *float64  `json:"meanMs,omitempty" yaml:"meanMs,omitempty"`
	Stats        Stats     `json:"stats" yaml:"stats"`
	Result       uint32    `json:"result" yaml:"result"`
	Err          error     `json:"-" yaml:"-"`
	Error        string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Complete marks the cell completed with the mean of its stats.
func (c *Cell) Complete() {
	mean := c.Stats.Mean()
	c.State = CellCompleted
	c.MeanMs = &mean
}

// Fail marks the cell as an error. Its mean is dropped.
func (c *Cell) Fail(err error) {
	c.State = CellError
	c.MeanMs = nil
	c.Err = err
	if err != nil {
		c.Error = err.Error()
	}
}

// SizeSummary is the outcome of every strategy at one element count.
type SizeSummary struct {
	ElementCount uint32 `json:"elementCount" yaml:"elementCount"`
	Oracle       uint32 `json:"oracle" yaml:"oracle"`
	OracleFrom   string `json:"oracleFrom,omitempty" yaml:"oracleFrom,omitempty"`
	Fastest      string `json:"fastest,omitempty" yaml:"fastest,omitempty"`
	Slowest      string `json:"slowest,omitempty" yaml:"slowest,omitempty"`
	Cells        []Cell `json:"cells" yaml:"cells"`
}

// Rank sets Fastest and Slowest from the completed cells. Failed cells are
// ignored; ties keep the earlier strategy.
func (s *SizeSummary) Rank() {
	done := lo.Filter(s.Cells, func(c Cell, _ int) bool {
		return c.State == CellCompleted && c.MeanMs != nil
	})
	s.Fastest, s.Slowest = "", ""
	if len(done) == 0 {
		return
	}
	fastest, slowest := done[0], done[0]
	for _, c := range done[1:] {
		if *c.MeanMs < *fastest.MeanMs {
			fastest = c
		}
		if *c.MeanMs > *slowest.MeanMs {
			slowest = c
		}
	}
	s.Fastest, s.Slowest = fastest.Strategy, slowest.Strategy
}

// Cell returns the cell of strategy, if present.
func (s SizeSummary) Cell(strategy string) (Cell, bool) {
	return lo.Find(s.Cells, func(c Cell) bool { return c.Strategy == strategy })
}

// Document is a complete benchmark run.
type Document struct {
	RunID      string        `json:"runId" yaml:"runId"`
	StartedAt  time.Time     `json:"startedAt" yaml:"startedAt"`
	Adapter    string        `json:"adapter" yaml:"adapter"`
	Backend    string        `json:"backend" yaml:"backend"`
	RunLimit   string        `json:"runLimit" yaml:"runLimit"`
	Strategies []string      `json:"strategies" yaml:"strategies"`
	Sizes      []SizeSummary `json:"sizes" yaml:"sizes"`
}

// NewDocument starts a document with a fresh run ID.
func NewDocument(adapter, backend, runLimit string, strategies []string) *Document {
	return &Document{
		RunID:      uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		Adapter:    adapter,
		Backend:    backend,
		RunLimit:   runLimit,
		Strategies: strategies,
	}
}

// Errors returns every failed cell.
func (d *Document) Errors() []Cell {
	return lo.FlatMap(d.Sizes, func(s SizeSummary, _ int) []Cell {
		return lo.Filter(s.Cells, func(c Cell, _ int) bool { return c.State == CellError })
	})
}

var superscripts = map[rune]rune{
	'0': '⁰', '1': '¹', '2': '²', '3': '³', '4': '⁴',
	'5': '⁵', '6': '⁶', '7': '⁷', '8': '⁸', '9': '⁹',
}

// FormatCount renders an element count with its power of two, e.g.
// "1048576 (2²⁰)". Counts that are not powers of two are returned plain.
func FormatCount(n uint32) string {
	if n == 0 || bits.OnesCount32(n) != 1 {
		return fmt.Sprint(n)
	}
	exp := fmt.Sprint(bits.TrailingZeros32(n))
	var b strings.Builder
	for _, r := range exp {
		b.WriteRune(superscripts[r])
	}
	return fmt.Sprintf("%d (2%s)", n, b.String())
}

// FormatMs renders a duration in milliseconds with up to three decimals.
func FormatMs(ms float64) string {
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", ms), "0"), ".")
	return s + " ms"
}
