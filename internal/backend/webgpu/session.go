//go:build windows

package webgpu

import (
	"context"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/reducebench/internal/device"
)

// Session is an open WebGPU device. It implements device.Session.
type Session struct {
	cfg  Config
	caps device.Capabilities

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache, keyed by specialization.
	shaders   map[device.Kernel]*wgpu.ShaderModule
	pipelines map[device.Kernel]*pipeline
	mu        sync.Mutex

	// Bind groups of submitted work, released after the next readback.
	inFlight []*wgpu.BindGroup

	memoryStats struct {
		allocatedBytes uint64
		peakBytes      uint64
		activeBuffers  int64
		compiled       uint64
		cacheHits      uint64
		mu             sync.Mutex
	}

	released bool
}

var _ device.Session = (*Session)(nil)

// New opens the high-performance adapter.
// Returns device.ErrDeviceUnavailable if WebGPU is not available or
// initialization fails.
func New(cfg Config) (session *Session, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			session = nil
			err = device.Unavailable("webgpu", errors.Errorf("native library not available: %v", r))
		}
	}()
	if cfg.Limits == (device.Limits{}) {
		cfg.Limits = device.DefaultLimits()
	}

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, device.Unavailable("webgpu", errors.Wrap(instanceErr, "create instance"))
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, device.Unavailable("webgpu", errors.Wrap(adapterErr, "request adapter"))
	}

	info, infoErr := adapter.GetInfo()
	if infoErr != nil {
		klog.Warningf("webgpu: %v", infoErr)
	}
	if supported, limitsErr := adapter.GetLimits(); limitsErr != nil {
		klog.Warningf("webgpu: %v; assuming default limits", limitsErr)
	} else {
		cfg.Limits = deviceLimits(cfg.Limits, &supported.Limits)
	}

	dev, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, device.Unavailable("webgpu", errors.Wrap(deviceErr, "request device"))
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, device.Unavailable("webgpu", errors.New("no queue"))
	}

	s := &Session{
		cfg:       cfg,
		caps:      cfg.capabilities(adapterInfo(info)),
		instance:  instance,
		adapter:   adapter,
		device:    dev,
		queue:     queue,
		shaders:   make(map[device.Kernel]*wgpu.ShaderModule),
		pipelines: make(map[device.Kernel]*pipeline),
	}
	klog.V(1).Infof("webgpu: opened %s, limits %+v, subgroups=%v", s.caps.Adapter, cfg.Limits, cfg.Subgroups)
	return s, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// ListAdapters returns the default adapter. WebGPU has no enumeration API.
func ListAdapters() (adapters []device.AdapterInfo, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			adapters = nil
			err = device.Unavailable("webgpu", errors.Errorf("native library not available: %v", r))
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, device.Unavailable("webgpu", errors.Wrap(instanceErr, "create instance"))
	}
	defer instance.Release()

	adapter, adapterErr := instance.RequestAdapter(nil)
	if adapterErr != nil {
		return nil, device.Unavailable("webgpu", errors.Wrap(adapterErr, "no adapters available"))
	}
	defer adapter.Release()

	info, infoErr := adapter.GetInfo()
	if infoErr != nil {
		return nil, device.Unavailable("webgpu", errors.Wrap(infoErr, "adapter info"))
	}
	return []device.AdapterInfo{adapterInfo(info)}, nil
}

// Capabilities returns the configured limits and features.
func (s *Session) Capabilities() device.Capabilities {
	return s.caps
}

// CreateBuffer allocates an uninitialized buffer.
func (s *Session) CreateBuffer(label string, size uint64, usage device.BufferUsage) (device.Buffer, error) {
	return s.createBuffer(label, size, usage, nil)
}

// CreateBufferInit allocates a buffer holding a copy of data, uploaded
// through a mapping at creation.
func (s *Session) CreateBufferInit(label string, data []byte, usage device.BufferUsage) (device.Buffer, error) {
	return s.createBuffer(label, uint64(len(data)), usage, data)
}

func (s *Session) createBuffer(label string, size uint64, usage device.BufferUsage, data []byte) (b device.Buffer, err error) {
	if s.released {
		return nil, errors.Wrapf(device.ErrReleased, "create buffer %q", label)
	}
	if usage == 0 {
		return nil, errors.Wrapf(device.ErrInvalidUsage, "buffer %q has no usage", label)
	}
	if size > s.cfg.Limits.MaxBufferSize {
		return nil, device.BufferAllocationError(label, size,
			errors.Errorf("exceeds max buffer size %d", s.cfg.Limits.MaxBufferSize))
	}
	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = device.BufferAllocationError(label, size, errors.Errorf("%v", r))
		}
	}()

	// Buffers are at least one word so that bindings are never empty.
	alloc := max((size+3)&^3, 4)
	desc := &wgpu.BufferDescriptor{Usage: wgpuUsage(usage), Size: alloc}
	if data != nil {
		desc.MappedAtCreation = wgpu.True
	}
	raw := s.device.CreateBuffer(desc)
	if raw == nil {
		return nil, device.BufferAllocationError(label, size, errors.New("device returned no buffer"))
	}
	if data != nil {
		mappedPtr := raw.GetMappedRange(0, alloc)
		//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
		mapped := unsafe.Slice((*byte)(mappedPtr), alloc)
		copy(mapped, data)
		raw.Unmap()
	}

	s.trackAlloc(alloc)
	klog.V(1).Infof("webgpu: buffer %q %d bytes %s", label, alloc, usage)
	return &buffer{session: s, raw: raw, label: label, size: alloc, usage: usage}, nil
}

func wgpuUsage(u device.BufferUsage) wgpu.BufferUsage {
	var w wgpu.BufferUsage
	if u.Has(device.UsageMapRead) {
		w |= wgpu.BufferUsageMapRead
	}
	if u.Has(device.UsageCopySrc) {
		w |= wgpu.BufferUsageCopySrc
	}
	if u.Has(device.UsageCopyDst) {
		w |= wgpu.BufferUsageCopyDst
	}
	if u.Has(device.UsageStorage) {
		w |= wgpu.BufferUsageStorage
	}
	return w
}

// NewEncoder starts a command recording.
func (s *Session) NewEncoder() device.Encoder {
	return &encoder{session: s, raw: s.device.CreateCommandEncoder(nil)}
}

// Submit queues a finished command buffer.
func (s *Session) Submit(cmd device.CommandBuffer) error {
	if s.released {
		return errors.Wrap(device.ErrReleased, "submit")
	}
	cb, ok := cmd.(*commandBuffer)
	if !ok || cb.session != s {
		return errors.Wrapf(device.ErrInvalidUsage, "submit: command buffer %T does not belong to this device", cmd)
	}
	if cb.submitted {
		return errors.Wrap(device.ErrInvalidUsage, "submit: command buffer already submitted")
	}
	cb.submitted = true
	s.queue.Submit(cb.raw)
	s.inFlight = append(s.inFlight, cb.bindGroups...)
	return nil
}

// ReadUint32 maps b once all submitted work completes and returns its first
// word. MapAsync blocks until the device is done; ctx is only checked
// before mapping.
func (s *Session) ReadUint32(ctx context.Context, b device.Buffer) (uint32, error) {
	if s.released {
		return 0, errors.Wrap(device.ErrReleased, "read")
	}
	buf, err := s.own(b)
	if err != nil {
		return 0, err
	}
	if !buf.usage.Has(device.UsageMapRead) {
		return 0, errors.Wrapf(device.ErrInvalidUsage, "map buffer %q without MAP_READ (%s)", buf.label, buf.usage)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := buf.raw.MapAsync(s.device, wgpu.MapModeRead, 0, 4); err != nil {
		return 0, errors.Wrapf(err, "map staging buffer %q", buf.label)
	}
	mappedPtr := buf.raw.GetMappedRange(0, 4)
	v := *(*uint32)(mappedPtr)
	buf.raw.Unmap()

	s.releaseInFlight()
	return v, nil
}

func (s *Session) releaseInFlight() {
	for _, bg := range s.inFlight {
		bg.Release()
	}
	s.inFlight = s.inFlight[:0]
}

// MemoryStats returns allocation and pipeline cache counters.
func (s *Session) MemoryStats() device.MemoryStats {
	s.mu.Lock()
	cached := len(s.pipelines)
	s.mu.Unlock()

	s.memoryStats.mu.Lock()
	defer s.memoryStats.mu.Unlock()
	return device.MemoryStats{
		AllocatedBytes:    s.memoryStats.allocatedBytes,
		PeakBytes:         s.memoryStats.peakBytes,
		ActiveBuffers:     s.memoryStats.activeBuffers,
		PipelinesCompiled: s.memoryStats.compiled,
		PipelineCacheHits: s.memoryStats.cacheHits,
		CachedPipelines:   cached,
	}
}

// Release releases all WebGPU resources.
// Buffers still alive report ErrReleased on use.
func (s *Session) Release() {
	if s.released {
		return
	}
	s.releaseInFlight()
	s.EvictPipelines()
	s.released = true

	if s.queue != nil {
		s.queue.Release()
		s.queue = nil
	}
	if s.device != nil {
		s.device.Release()
		s.device = nil
	}
	if s.adapter != nil {
		s.adapter.Release()
		s.adapter = nil
	}
	if s.instance != nil {
		s.instance.Release()
		s.instance = nil
	}
	klog.V(1).Infof("webgpu: released (%d buffers still active)", s.MemoryStats().ActiveBuffers)
}

func (s *Session) own(b device.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok || buf == nil || buf.session != s {
		return nil, errors.Wrapf(device.ErrInvalidUsage, "buffer %T does not belong to this device", b)
	}
	if buf.raw == nil {
		return nil, errors.Wrapf(device.ErrReleased, "buffer %q", buf.label)
	}
	return buf, nil
}

func (s *Session) trackAlloc(size uint64) {
	s.memoryStats.mu.Lock()
	defer s.memoryStats.mu.Unlock()
	s.memoryStats.allocatedBytes += size
	s.memoryStats.activeBuffers++
	if s.memoryStats.allocatedBytes > s.memoryStats.peakBytes {
		s.memoryStats.peakBytes = s.memoryStats.allocatedBytes
	}
}

func (s *Session) trackFree(size uint64) {
	s.memoryStats.mu.Lock()
	defer s.memoryStats.mu.Unlock()
	if s.memoryStats.allocatedBytes >= size {
		s.memoryStats.allocatedBytes -= size
	}
	s.memoryStats.activeBuffers--
}

// buffer wraps a GPU allocation.
type buffer struct {
	session *Session
	raw     *wgpu.Buffer
	label   string
	size    uint64
	usage   device.BufferUsage
}

func (b *buffer) Label() string             { return b.label }
func (b *buffer) Size() uint64              { return b.size }
func (b *buffer) Usage() device.BufferUsage { return b.usage }

// Release frees the GPU allocation. Releasing twice is a no-op.
func (b *buffer) Release() {
	if b.raw == nil {
		return
	}
	b.raw.Release()
	b.raw = nil
	b.session.trackFree(b.size)
}
