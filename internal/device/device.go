// Package device defines the compute-device session every reduction strategy
// runs on.
//
// A Session owns one device and its single command queue. Strategies
// allocate buffers, obtain specialized pipelines, record dispatches and
// copies into an Encoder, submit the finished command buffer, and await the
// result by mapping a staging buffer. Two implementations exist:
// internal/backend/webgpu (a real GPU through WebGPU) and
// internal/backend/emulator (a software device).
package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/born-ml/reducebench/internal/dispatch"
)

// BufferUsage is a bitmask of the ways a buffer may be used.
type BufferUsage uint32

// Buffer usage flags, mirroring WebGPU.
const (
	UsageMapRead BufferUsage = 1 << iota
	UsageCopySrc
	UsageCopyDst
	UsageStorage
)

// Has reports whether all flags in want are set.
func (u BufferUsage) Has(want BufferUsage) bool {
	return u&want == want
}

// String implements fmt.Stringer.
func (u BufferUsage) String() string {
	var parts []string
	for _, f := range []struct {
		flag BufferUsage
		name string
	}{
		{UsageMapRead, "MAP_READ"},
		{UsageCopySrc, "COPY_SRC"},
		{UsageCopyDst, "COPY_DST"},
		{UsageStorage, "STORAGE"},
	} {
		if u.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Limits are the hardware limits of a device.
type Limits struct {
	MaxWorkgroupSize   uint32 // Invocations per workgroup.
	MaxDispatchPerAxis uint32 // Workgroups per grid dimension.
	MaxBufferSize      uint64 // Bytes per storage buffer binding.
}

// Dispatch returns the subset of limits the dispatch planner needs.
func (l Limits) Dispatch() dispatch.Limits {
	return dispatch.Limits{
		MaxWorkgroupSize:   l.MaxWorkgroupSize,
		MaxDispatchPerAxis: l.MaxDispatchPerAxis,
	}
}

// DefaultLimits returns the limits every WebGPU implementation guarantees.
func DefaultLimits() Limits {
	d := dispatch.DefaultLimits()
	return Limits{
		MaxWorkgroupSize:   d.MaxWorkgroupSize,
		MaxDispatchPerAxis: d.MaxDispatchPerAxis,
		MaxBufferSize:      128 << 20,
	}
}

// AdapterInfo identifies the device behind a session.
type AdapterInfo struct {
	Name         string
	Vendor       string
	Architecture string
	Backend      string
}

// String implements fmt.Stringer.
func (a AdapterInfo) String() string {
	s := a.Name
	if a.Vendor != "" {
		s += " (" + a.Vendor + ")"
	}
	if a.Architecture != "" {
		s += " " + a.Architecture
	}
	return s
}

// Capabilities describe what a device can do.
type Capabilities struct {
	Limits            Limits
	SubgroupReduction bool   // Hardware subgroup add is available.
	SubgroupSize      uint32 // Lanes per subgroup (0 if unknown).
	Adapter           AdapterInfo
}

// KernelKind selects a reduction kernel template.
type KernelKind int

const (
	// KernelClear zeroes a scalar accumulator.
	KernelClear KernelKind = iota
	// KernelTileAtomic strides over WorkgroupsPerTile scalars per invocation,
	// tree-reduces in shared memory and atomically adds one partial per workgroup.
	KernelTileAtomic
	// KernelVec4Atomic is KernelTileAtomic with vec4 loads.
	KernelVec4Atomic
	// KernelPartials is KernelTileAtomic writing output[workgroupIndex]
	// instead of adding atomically.
	KernelPartials
	// KernelSubgroupAtomic sums one element per invocation with a subgroup
	// add; the first lane of each subgroup adds atomically.
	KernelSubgroupAtomic
	// KernelSubgroupStride accumulates with a grid-stride loop before the
	// subgroup add.
	KernelSubgroupStride
)

var kernelNames = map[KernelKind]string{
	KernelClear:          "clear",
	KernelTileAtomic:     "tileAtomic",
	KernelVec4Atomic:     "vec4Atomic",
	KernelPartials:       "partials",
	KernelSubgroupAtomic: "subgroupAtomic",
	KernelSubgroupStride: "subgroupStride",
}

// String implements fmt.Stringer.
func (k KernelKind) String() string {
	if name, ok := kernelNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KernelKind(%d)", int(k))
}

// UsesSubgroups reports whether the kernel needs subgroup operations.
func (k KernelKind) UsesSubgroups() bool {
	return k == KernelSubgroupAtomic || k == KernelSubgroupStride
}

// Kernel is the compile-time specialization of a kernel template. It is
// comparable and used as the pipeline cache key.
type Kernel struct {
	Kind              KernelKind
	WorkgroupSize     uint32
	WorkgroupsPerTile uint32
	GridX             uint32
}

// KernelFor specializes kind to a dispatch plan.
func KernelFor(kind KernelKind, p dispatch.Plan) Kernel {
	return Kernel{
		Kind:              kind,
		WorkgroupSize:     p.WorkgroupSize,
		WorkgroupsPerTile: p.WorkgroupsPerTile,
		GridX:             p.GridX,
	}
}

// ClearKernel returns the accumulator-clearing kernel.
func ClearKernel() Kernel {
	return Kernel{Kind: KernelClear, WorkgroupSize: 1, WorkgroupsPerTile: 1, GridX: 1}
}

// String implements fmt.Stringer.
func (k Kernel) String() string {
	return fmt.Sprintf("%s[wg=%d tile=%d gridX=%d]", k.Kind, k.WorkgroupSize, k.WorkgroupsPerTile, k.GridX)
}

// Buffer is a device allocation. It is owned by whoever created it.
type Buffer interface {
	Label() string
	Size() uint64
	Usage() BufferUsage
	Release()
}

// Pipeline is a compiled, specialized kernel.
type Pipeline interface {
	Kernel() Kernel
}

// CommandBuffer is a finished, submittable recording.
type CommandBuffer interface{}

// Encoder records work for one submission. Dispatch bindings follow the
// kernel's binding order: input first, output second (the clear kernel
// binds only the accumulator).
type Encoder interface {
	Dispatch(p Pipeline, gridX, gridY uint32, bindings ...Buffer)
	CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset, size uint64)
	Finish() (CommandBuffer, error)
}

// MemoryStats reports device allocations made through a session.
type MemoryStats struct {
	AllocatedBytes    uint64 // Bytes currently allocated.
	PeakBytes         uint64 // Highest AllocatedBytes seen.
	ActiveBuffers     int64  // Buffers not yet released.
	PipelinesCompiled uint64 // Pipeline cache misses.
	PipelineCacheHits uint64 // Pipeline cache hits.
	CachedPipelines   int    // Pipelines currently cached.
}

// Session is an open device with one command queue.
//
// Sessions are used from a single host goroutine. Submit is asynchronous;
// ReadUint32 is the only call that waits for device work.
type Session interface {
	// Capabilities returns the device limits and features.
	Capabilities() Capabilities

	// CreateBuffer allocates an uninitialized buffer.
	CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error)

	// CreateBufferInit allocates a buffer holding a copy of data.
	CreateBufferInit(label string, data []byte, usage BufferUsage) (Buffer, error)

	// Pipeline returns the compiled pipeline for k, compiling it on first use.
	Pipeline(k Kernel) (Pipeline, error)

	// NewEncoder starts a command recording.
	NewEncoder() Encoder

	// Submit queues a finished command buffer.
	Submit(cmd CommandBuffer) error

	// ReadUint32 maps a MAP_READ buffer after all submitted work completes
	// and returns its first word.
	ReadUint32(ctx context.Context, b Buffer) (uint32, error)

	// EvictPipelines releases every cached pipeline.
	EvictPipelines()

	// MemoryStats returns allocation counters.
	MemoryStats() MemoryStats

	// Release frees the device. The session must not be used afterwards.
	Release()
}
