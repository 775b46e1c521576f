//go:build windows

package webgpu

import (
	"context"
	"testing"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/reducebench/internal/device"
	"github.com/born-ml/reducebench/internal/dispatch"
)

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(DefaultConfig())
	if err != nil {
		t.Logf("WebGPU not available: %v", err)
		t.Skip("WebGPU not available on this system")
	}
	t.Cleanup(s.Release)
	return s
}

func TestIsAvailable(t *testing.T) {
	t.Logf("WebGPU available: %v", IsAvailable())
}

func TestListAdapters(t *testing.T) {
	adapters, err := ListAdapters()
	if err != nil {
		t.Skip("WebGPU not available on this system")
	}
	for i, info := range adapters {
		t.Logf("Adapter %d: %s [%s]", i, info, info.Backend)
	}
}

func TestNew_Capabilities(t *testing.T) {
	s := newSession(t)
	caps := s.Capabilities()
	defaults := device.DefaultLimits()
	assert.LessOrEqual(t, caps.Limits.MaxWorkgroupSize, defaults.MaxWorkgroupSize)
	assert.LessOrEqual(t, caps.Limits.MaxDispatchPerAxis, defaults.MaxDispatchPerAxis)
	assert.LessOrEqual(t, caps.Limits.MaxBufferSize, defaults.MaxBufferSize)
	assert.NotZero(t, caps.Limits.MaxWorkgroupSize)
	assert.False(t, caps.SubgroupReduction)
	assert.NotEmpty(t, caps.Adapter.Name)
}

func words(n int, v uint32) []byte {
	data := make([]uint32, n)
	for i := range data {
		data[i] = v
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), n*4)
}

func TestTileAtomicSum(t *testing.T) {
	s := newSession(t)
	const n = 1 << 16

	plan, err := dispatch.New(n, s.Capabilities().Limits.Dispatch(), dispatch.Options{MaxWorkgroupSize: 64, MaxWorkgroupsPerTile: 32, VectorWidth: 1})
	require.NoError(t, err)

	clearPipe, err := s.Pipeline(device.ClearKernel())
	require.NoError(t, err)
	sum, err := s.Pipeline(device.KernelFor(device.KernelTileAtomic, plan))
	require.NoError(t, err)

	var res device.Resources
	defer res.Release()
	in, err := s.CreateBufferInit("input", words(n, 1), device.UsageStorage|device.UsageCopyDst)
	require.NoError(t, err)
	res.Add(in)
	acc, err := s.CreateBuffer("output", 4, device.UsageStorage|device.UsageCopySrc)
	require.NoError(t, err)
	res.Add(acc)
	staging, err := s.CreateBuffer("staging", 4, device.UsageMapRead|device.UsageCopyDst)
	require.NoError(t, err)
	res.Add(staging)

	for run := 0; run < 2; run++ {
		enc := s.NewEncoder()
		enc.Dispatch(clearPipe, 1, 1, acc)
		enc.Dispatch(sum, plan.GridX, plan.GridY, in, acc)
		enc.CopyBufferToBuffer(acc, 0, staging, 0, 4)
		cmd, err := enc.Finish()
		require.NoError(t, err)
		require.NoError(t, s.Submit(cmd))

		got, err := s.ReadUint32(context.Background(), staging)
		require.NoError(t, err)
		assert.Equal(t, uint32(n), got, "run %d", run)
	}

	stats := s.MemoryStats()
	assert.Equal(t, int64(3), stats.ActiveBuffers)
	assert.Equal(t, uint64(2), stats.PipelinesCompiled)
}

func TestPipelineCache(t *testing.T) {
	s := newSession(t)
	k := device.Kernel{Kind: device.KernelPartials, WorkgroupSize: 64, WorkgroupsPerTile: 1, GridX: 1}

	p1, err := s.Pipeline(k)
	require.NoError(t, err)
	p2, err := s.Pipeline(k)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, uint64(1), s.MemoryStats().PipelineCacheHits)

	s.EvictPipelines()
	assert.Zero(t, s.MemoryStats().CachedPipelines)

	evicted := p1.(*pipeline)
	assert.Nil(t, evicted.raw)
	assert.Nil(t, evicted.layout)

	out, err := s.CreateBuffer("output", 4, device.UsageStorage)
	require.NoError(t, err)
	defer out.Release()
	enc := s.NewEncoder()
	enc.Dispatch(p1, 1, 1, out, out)
	_, err = enc.Finish()
	assert.True(t, errors.Is(err, device.ErrReleased))
}

func TestSubgroupsDisabled(t *testing.T) {
	s := newSession(t)
	_, err := s.Pipeline(device.Kernel{Kind: device.KernelSubgroupAtomic, WorkgroupSize: 64, WorkgroupsPerTile: 1, GridX: 1})
	assert.True(t, errors.Is(err, device.ErrResourceAllocation))
}

func TestBufferLimits(t *testing.T) {
	s := newSession(t)
	_, err := s.CreateBuffer("huge", s.Capabilities().Limits.MaxBufferSize+4, device.UsageStorage)
	assert.True(t, errors.Is(err, device.ErrResourceAllocation))

	_, err = s.CreateBuffer("none", 4, 0)
	assert.True(t, errors.Is(err, device.ErrInvalidUsage))
}
