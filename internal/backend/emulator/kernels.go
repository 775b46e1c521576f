package emulator

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/born-ml/reducebench/internal/device"
	"github.com/born-ml/reducebench/internal/dispatch"
)

// invocation is the state shared by every workgroup of one dispatch.
type invocation struct {
	kernel       device.Kernel
	gridX, gridY uint32
	subgroupSize uint32
	input        []uint32 // Read-only binding (nil for the clear kernel).
	output       []uint32 // Accumulator or partial sums.
}

// kernelFunc executes one workgroup at grid coordinate (wx, wy). shared is the
// workgroup's local memory, one word per lane.
type kernelFunc func(inv *invocation, wx, wy uint32, shared []uint32) error

var kernels = map[device.KernelKind]kernelFunc{
	device.KernelClear:          runClear,
	device.KernelTileAtomic:     runTile,
	device.KernelVec4Atomic:     runTile,
	device.KernelPartials:       runTile,
	device.KernelSubgroupAtomic: runSubgroup,
	device.KernelSubgroupStride: runSubgroup,
}

var errOutOfBounds = errors.New("out-of-bounds access")

func runClear(inv *invocation, _, _ uint32, _ []uint32) error {
	if len(inv.output) == 0 {
		return errors.Wrap(errOutOfBounds, "clear: empty accumulator")
	}
	atomic.StoreUint32(&inv.output[0], 0)
	return nil
}

// workgroupIndex flattens a folded grid coordinate.
func (inv *invocation) workgroupIndex(wx, wy uint32) uint32 {
	return dispatch.LinearIndex(wx, wy, inv.gridX, 1)
}

// load reads load unit u: one scalar, or the four lanes of a vec4 summed.
func (inv *invocation) load(u uint32) (uint32, error) {
	if inv.kernel.Kind == device.KernelVec4Atomic {
		base := uint64(u) * 4
		if base+4 > uint64(len(inv.input)) {
			return 0, errors.Wrapf(errOutOfBounds, "vec4 read at %d of %d words", base, len(inv.input))
		}
		v := inv.input[base : base+4]
		return v[0] + v[1] + v[2] + v[3], nil
	}
	if uint64(u) >= uint64(len(inv.input)) {
		return 0, errors.Wrapf(errOutOfBounds, "read at %d of %d words", u, len(inv.input))
	}
	return inv.input[u], nil
}

// runTile covers KernelTileAtomic, KernelVec4Atomic and KernelPartials. Lane l
// of workgroup w reads units w*tileWidth + l + j*workgroupSize for every j
// below WorkgroupsPerTile, then the workgroup tree-reduces in shared memory.
func runTile(inv *invocation, wx, wy uint32, shared []uint32) error {
	k := inv.kernel
	tileWidth := k.WorkgroupSize * k.WorkgroupsPerTile
	for lane := uint32(0); lane < k.WorkgroupSize; lane++ {
		first := dispatch.LinearIndex(wx*tileWidth+lane, wy, inv.gridX, tileWidth)
		var sum uint32
		for j := uint32(0); j < k.WorkgroupsPerTile; j++ {
			v, err := inv.load(first + j*k.WorkgroupSize)
			if err != nil {
				return err
			}
			sum += v
		}
		shared[lane] = sum
	}
	// workgroupBarrier

	for stride := k.WorkgroupSize / 2; stride > 0; stride >>= 1 {
		for lane := uint32(0); lane < stride; lane++ {
			shared[lane] += shared[lane+stride]
		}
		// workgroupBarrier
	}

	if k.Kind == device.KernelPartials {
		w := inv.workgroupIndex(wx, wy)
		if uint64(w) >= uint64(len(inv.output)) {
			return errors.Wrapf(errOutOfBounds, "write at %d of %d partials", w, len(inv.output))
		}
		inv.output[w] = shared[0]
		return nil
	}
	return inv.atomicAdd(shared[0])
}

// runSubgroup covers KernelSubgroupAtomic and KernelSubgroupStride. Each lane
// builds a private sum, the subgroup adds its lanes without shared-memory
// rounds, and the first lane of every subgroup adds atomically.
//
// KernelSubgroupAtomic lanes read their tile like runTile does.
// KernelSubgroupStride lanes start at their global invocation index and step
// by the total number of invocations in the grid.
func runSubgroup(inv *invocation, wx, wy uint32, shared []uint32) error {
	k := inv.kernel
	tileWidth := k.WorkgroupSize * k.WorkgroupsPerTile
	gridStride := inv.gridX * inv.gridY * k.WorkgroupSize
	for lane := uint32(0); lane < k.WorkgroupSize; lane++ {
		var first, step uint32
		if k.Kind == device.KernelSubgroupStride {
			first = dispatch.LinearIndex(wx*k.WorkgroupSize+lane, wy, inv.gridX, k.WorkgroupSize)
			step = gridStride
		} else {
			first = dispatch.LinearIndex(wx*tileWidth+lane, wy, inv.gridX, tileWidth)
			step = k.WorkgroupSize
		}
		var sum uint32
		for j := uint32(0); j < k.WorkgroupsPerTile; j++ {
			v, err := inv.load(first + j*step)
			if err != nil {
				return err
			}
			sum += v
		}
		shared[lane] = sum
	}

	width := min(max(inv.subgroupSize, 1), k.WorkgroupSize)
	for base := uint32(0); base < k.WorkgroupSize; base += width {
		var sum uint32
		for _, v := range shared[base:min(base+width, k.WorkgroupSize)] {
			sum += v
		}
		if err := inv.atomicAdd(sum); err != nil {
			return err
		}
	}
	return nil
}

func (inv *invocation) atomicAdd(v uint32) error {
	if len(inv.output) == 0 {
		return errors.Wrap(errOutOfBounds, "atomicAdd: empty accumulator")
	}
	atomic.AddUint32(&inv.output[0], v)
	return nil
}
