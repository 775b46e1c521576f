// Package dispatch derives workgroup and grid shapes for reduction kernels.
//
// A Plan describes one kernel dispatch that covers an input of a given length
// exactly once: every workgroup consumes one tile of
// WorkgroupSize * WorkgroupsPerTile * VectorWidth elements, and the grid is
// folded from X into Y until it fits the per-axis dispatch limit.
package dispatch

import (
	"fmt"
	"math/bits"
)

// Limits are the device limits the planner must respect.
type Limits struct {
	MaxWorkgroupSize   uint32 // Invocations per workgroup.
	MaxDispatchPerAxis uint32 // Workgroups per grid dimension.
}

// DefaultLimits returns the limits every WebGPU implementation guarantees.
func DefaultLimits() Limits {
	return Limits{
		MaxWorkgroupSize:   256,
		MaxDispatchPerAxis: 65535,
	}
}

// Options are the per-strategy planning preferences.
type Options struct {
	MaxWorkgroupSize     uint32 // Preferred workgroup size cap (0 = device limit).
	MaxWorkgroupsPerTile uint32 // Workgroup widths one workgroup strides over (0 = 1).
	VectorWidth          uint32 // Elements per load: 1 or 4 (0 = 1).
}

// Plan is an immutable dispatch shape for one reduction pass.
type Plan struct {
	InputLength       uint32
	WorkgroupSize     uint32
	WorkgroupsPerTile uint32
	VectorWidth       uint32
	GridX             uint32
	GridY             uint32
}

// TileWidth returns the number of load units (scalars or vectors) one
// workgroup consumes.
func (p Plan) TileWidth() uint32 {
	return p.WorkgroupSize * p.WorkgroupsPerTile
}

// TileSize returns the number of input elements one workgroup consumes.
func (p Plan) TileSize() uint32 {
	return p.TileWidth() * p.VectorWidth
}

// WorkgroupCount returns the total number of dispatched workgroups, which is
// also the number of partial sums a non-atomic pass produces.
func (p Plan) WorkgroupCount() uint32 {
	return p.GridX * p.GridY
}

// Invocations returns the total number of launched invocations.
func (p Plan) Invocations() uint64 {
	return uint64(p.WorkgroupCount()) * uint64(p.WorkgroupSize)
}

// Covered returns the number of elements the plan reads. It equals
// InputLength for every plan returned by New.
func (p Plan) Covered() uint64 {
	return uint64(p.WorkgroupSize) * uint64(p.WorkgroupsPerTile) *
		uint64(p.VectorWidth) * uint64(p.GridX) * uint64(p.GridY)
}

// String implements fmt.Stringer.
func (p Plan) String() string {
	return fmt.Sprintf("n=%d wg=%d tile=%d vec=%d grid=%dx%d",
		p.InputLength, p.WorkgroupSize, p.WorkgroupsPerTile, p.VectorWidth, p.GridX, p.GridY)
}

// New plans a single dispatch over n elements.
//
// The workgroup size is min(preferred size, device limit, n / VectorWidth),
// the tiling factor is min(MaxWorkgroupsPerTile, remaining workgroups), and
// the resulting grid is folded by halving X and doubling Y while X exceeds
// the per-axis limit. Any stage that does not divide evenly fails with an
// *UnsupportedSizeError.
func New(n uint32, limits Limits, opts Options) (Plan, error) {
	vec := max(opts.VectorWidth, 1)
	if n == 0 {
		return Plan{}, unsupported(n, "length", "input is empty")
	}
	if vec != 1 && vec != 4 {
		return Plan{}, unsupported(n, "vector", fmt.Sprintf("vector width %d is not 1 or 4", vec))
	}
	if n%vec != 0 {
		return Plan{}, unsupported(n, "vector", fmt.Sprintf("length is not a multiple of %d", vec))
	}
	if limits.MaxWorkgroupSize == 0 || limits.MaxDispatchPerAxis == 0 {
		return Plan{}, unsupported(n, "limits", "device limits are zero")
	}
	units := n / vec

	wgCap := limits.MaxWorkgroupSize
	if opts.MaxWorkgroupSize > 0 {
		wgCap = min(wgCap, opts.MaxWorkgroupSize)
	}
	workgroupSize := min(wgCap, units)
	// The shared-memory tree halves the active lanes each round.
	if bits.OnesCount32(workgroupSize) != 1 {
		return Plan{}, unsupported(n, "workgroup", fmt.Sprintf("workgroup size %d is not a power of two", workgroupSize))
	}
	if units%workgroupSize != 0 {
		return Plan{}, unsupported(n, "workgroup", fmt.Sprintf("%d units do not split into workgroups of %d", units, workgroupSize))
	}
	workgroups := units / workgroupSize

	perTile := min(max(opts.MaxWorkgroupsPerTile, 1), workgroups)
	if workgroups%perTile != 0 {
		return Plan{}, unsupported(n, "tile", fmt.Sprintf("%d workgroups do not split into tiles of %d", workgroups, perTile))
	}

	gridX := workgroups / perTile
	gridY := uint32(1)
	for gridX > limits.MaxDispatchPerAxis {
		if gridX%2 != 0 {
			return Plan{}, unsupported(n, "grid", fmt.Sprintf("grid width %d cannot be halved", gridX))
		}
		gridX /= 2
		gridY *= 2
	}
	if gridY > limits.MaxDispatchPerAxis {
		return Plan{}, unsupported(n, "grid", fmt.Sprintf("grid height %d exceeds %d", gridY, limits.MaxDispatchPerAxis))
	}

	return Plan{
		InputLength:       n,
		WorkgroupSize:     workgroupSize,
		WorkgroupsPerTile: perTile,
		VectorWidth:       vec,
		GridX:             gridX,
		GridY:             gridY,
	}, nil
}

// PlanPasses plans the cascade of a multi-pass reduction over n elements.
// Each pass consumes the partial sums the previous pass produced; the last
// pass dispatches a single workgroup. A single element needs no pass.
func PlanPasses(n uint32, limits Limits, opts Options) ([]Plan, error) {
	if n == 0 {
		return nil, unsupported(n, "length", "input is empty")
	}
	var passes []Plan
	for remaining := n; remaining > 1; {
		p, err := New(remaining, limits, opts)
		if err != nil {
			return nil, err
		}
		passes = append(passes, p)
		remaining = p.WorkgroupCount()
	}
	return passes, nil
}

// LinearIndex maps a 2-D grid coordinate to a flat index. For workgroup ids
// width is 1; for global invocation ids width is the workgroup size.
func LinearIndex(x, y, gridX, width uint32) uint32 {
	return x + y*gridX*width
}
