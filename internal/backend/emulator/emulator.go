// Package emulator implements a software compute device.
//
// The emulator runs the same kernels the WebGPU backend compiles, with the
// same workgroup decomposition, shared-memory trees and atomic accumulators.
// Submissions execute in order on a dedicated queue goroutine and the
// workgroups of one dispatch are spread over a bounded worker pool, so
// results, validation errors and resource failures match what a real device
// reports. It is the default device when no GPU adapter is present and the
// device every strategy is tested against.
package emulator

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
	"k8s.io/klog/v2"

	"github.com/born-ml/reducebench/internal/device"
	"github.com/born-ml/reducebench/internal/parallel"
)

// Config configures an emulated device.
type Config struct {
	// Limits are the advertised hardware limits. MaxBufferSize also caps
	// every allocation, which lets tests provoke allocation failures.
	Limits device.Limits

	// SubgroupReduction advertises subgroup add support.
	SubgroupReduction bool

	// SubgroupSize is the number of lanes per emulated subgroup.
	SubgroupSize uint32

	// Parallel controls how workgroups of one dispatch fan out.
	Parallel parallel.Config
}

// DefaultConfig returns a device with the WebGPU default limits, 32-lane
// subgroups and one worker per CPU.
func DefaultConfig() Config {
	p := parallel.DefaultConfig()
	p.MinChunkSize = 16
	return Config{
		Limits:            device.DefaultLimits(),
		SubgroupReduction: true,
		SubgroupSize:      32,
		Parallel:          p,
	}
}

// Session is an open emulated device. It implements device.Session.
type Session struct {
	cfg  Config
	caps device.Capabilities

	pipelines map[device.Kernel]*pipeline
	pipeMu    sync.Mutex

	queue *queue

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

// New opens an emulated device.
func New(cfg Config) (*Session, error) {
	if cfg.Limits.MaxWorkgroupSize == 0 || cfg.Limits.MaxDispatchPerAxis == 0 || cfg.Limits.MaxBufferSize == 0 {
		return nil, device.Unavailable("emulator", errors.Errorf("invalid limits %+v", cfg.Limits))
	}
	if cfg.SubgroupReduction && cfg.SubgroupSize == 0 {
		return nil, device.Unavailable("emulator", errors.New("subgroup size must be positive"))
	}

	s := &Session{
		cfg: cfg,
		caps: device.Capabilities{
			Limits:            cfg.Limits,
			SubgroupReduction: cfg.SubgroupReduction,
			Adapter:           adapterInfo(),
		},
		pipelines: make(map[device.Kernel]*pipeline),
	}
	if cfg.SubgroupReduction {
		s.caps.SubgroupSize = cfg.SubgroupSize
	}
	s.queue = newQueue(s)

	klog.V(1).Infof("emulator: opened %s, limits %+v, subgroups=%v", s.caps.Adapter, cfg.Limits, cfg.SubgroupReduction)
	return s, nil
}

// adapterInfo describes the host CPU the emulator runs on.
func adapterInfo() device.AdapterInfo {
	return device.AdapterInfo{
		Name:         "software emulator",
		Vendor:       "reducebench",
		Architecture: runtime.GOARCH + hostFeatures(),
		Backend:      "emulator",
	}
}

// hostFeatures lists the SIMD extensions of the host, formatted for display.
func hostFeatures() string {
	var features []string
	switch runtime.GOARCH {
	case "amd64":
		for _, f := range []struct {
			ok   bool
			name string
		}{
			{cpu.X86.HasSSE41, "sse4.1"},
			{cpu.X86.HasAVX2, "avx2"},
			{cpu.X86.HasAVX512F, "avx512f"},
		} {
			if f.ok {
				features = append(features, f.name)
			}
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "neon")
		}
		if cpu.ARM64.HasSVE {
			features = append(features, "sve")
		}
	}
	if len(features) == 0 {
		return ""
	}
	return " [" + strings.Join(features, " ") + "]"
}

// Capabilities returns the advertised limits and features.
func (s *Session) Capabilities() device.Capabilities {
	return s.caps
}

// CreateBuffer allocates a zeroed buffer.
func (s *Session) CreateBuffer(label string, size uint64, usage device.BufferUsage) (device.Buffer, error) {
	if s.released {
		return nil, errors.Wrapf(device.ErrReleased, "create buffer %q", label)
	}
	if err := validateUsage(label, usage); err != nil {
		return nil, err
	}
	if size > s.cfg.Limits.MaxBufferSize {
		return nil, device.BufferAllocationError(label, size,
			errors.Errorf("exceeds max buffer size %d", s.cfg.Limits.MaxBufferSize))
	}

	b := &buffer{
		session: s,
		label:   label,
		size:    size,
		usage:   usage,
		data:    make([]uint32, (size+3)/4),
	}
	s.trackAlloc(size)
	klog.V(1).Infof("emulator: buffer %q %d bytes %s", label, size, usage)
	return b, nil
}

// CreateBufferInit allocates a buffer holding a copy of data.
func (s *Session) CreateBufferInit(label string, data []byte, usage device.BufferUsage) (device.Buffer, error) {
	buf, err := s.CreateBuffer(label, uint64(len(data)), usage)
	if err != nil {
		return nil, err
	}
	b := buf.(*buffer)
	copy(b.bytes(), data)
	return b, nil
}

// validateUsage applies the WebGPU usage rules the benchmark can hit.
func validateUsage(label string, usage device.BufferUsage) error {
	if usage == 0 {
		return errors.Wrapf(device.ErrInvalidUsage, "buffer %q has no usage", label)
	}
	if usage.Has(device.UsageMapRead) && usage&^(device.UsageMapRead|device.UsageCopyDst) != 0 {
		return errors.Wrapf(device.ErrInvalidUsage, "buffer %q: MAP_READ only combines with COPY_DST, got %s", label, usage)
	}
	return nil
}

// NewEncoder starts a command recording.
func (s *Session) NewEncoder() device.Encoder {
	return &encoder{session: s}
}

// Submit queues a finished command buffer. Execution starts immediately on
// the queue goroutine.
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
	s.queue.push(cb)
	return nil
}

// ReadUint32 waits for all submitted work, maps b and returns its first word.
// Any execution error raised by earlier submissions is returned here.
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
	if buf.size < 4 {
		return 0, errors.Wrapf(device.ErrInvalidUsage, "map buffer %q: %d bytes is smaller than a word", buf.label, buf.size)
	}
	if err := s.queue.wait(ctx); err != nil {
		return 0, err
	}
	return buf.data[0], nil
}

// EvictPipelines drops every cached pipeline.
func (s *Session) EvictPipelines() {
	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()
	if len(s.pipelines) > 0 {
		klog.V(1).Infof("emulator: evicting %d pipelines", len(s.pipelines))
	}
	clear(s.pipelines)
}

// MemoryStats returns allocation and pipeline cache counters.
func (s *Session) MemoryStats() device.MemoryStats {
	s.pipeMu.Lock()
	cached := len(s.pipelines)
	s.pipeMu.Unlock()

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

// Release stops the queue after pending work drains and drops the pipeline
// cache. Buffers still alive report ErrReleased on use.
func (s *Session) Release() {
	if s.released {
		return
	}
	s.queue.close()
	s.EvictPipelines()
	s.released = true
	klog.V(1).Infof("emulator: released (%d buffers still active)", s.MemoryStats().ActiveBuffers)
}

func (s *Session) own(b device.Buffer) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok || buf == nil || buf.session != s {
		return nil, errors.Wrapf(device.ErrInvalidUsage, "buffer %T does not belong to this device", b)
	}
	if buf.released {
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
	s.memoryStats.allocatedBytes -= size
	s.memoryStats.activeBuffers--
}

// buffer is emulated device memory, stored as 32-bit words.
type buffer struct {
	session  *Session
	label    string
	size     uint64
	usage    device.BufferUsage
	data     []uint32
	released bool
}

func (b *buffer) Label() string             { return b.label }
func (b *buffer) Size() uint64              { return b.size }
func (b *buffer) Usage() device.BufferUsage { return b.usage }

// Release returns the allocation to the device. Releasing twice is a no-op.
// Work already submitted keeps its view of the data.
func (b *buffer) Release() {
	if b.released {
		return
	}
	b.released = true
	b.session.trackFree(b.size)
}

// bytes returns the byte view of the buffer, truncated to its size.
func (b *buffer) bytes() []byte {
	if len(b.data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b.data[0])), b.size) //nolint:gosec // Word storage viewed as bytes.
}
