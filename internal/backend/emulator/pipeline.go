package emulator

import (
	"math/bits"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/reducebench/internal/device"
)

// pipeline is a "compiled" kernel: the validated specialization plus the
// host function that executes one workgroup.
type pipeline struct {
	session *Session
	kernel  device.Kernel
	run     kernelFunc
}

// Kernel returns the specialization the pipeline was compiled for.
func (p *pipeline) Kernel() device.Kernel {
	return p.kernel
}

func (p *pipeline) bindingCount() int {
	if p.kernel.Kind == device.KernelClear {
		return 1
	}
	return 2
}

// Pipeline returns the cached pipeline for k, compiling it on a miss.
func (s *Session) Pipeline(k device.Kernel) (device.Pipeline, error) {
	if s.released {
		return nil, errors.Wrapf(device.ErrReleased, "pipeline %s", k)
	}

	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()

	if p, ok := s.pipelines[k]; ok {
		s.memoryStats.mu.Lock()
		s.memoryStats.cacheHits++
		s.memoryStats.mu.Unlock()
		return p, nil
	}

	run, err := s.compile(k)
	if err != nil {
		return nil, device.PipelineAllocationError(k, err)
	}
	p := &pipeline{session: s, kernel: k, run: run}
	s.pipelines[k] = p

	s.memoryStats.mu.Lock()
	s.memoryStats.compiled++
	s.memoryStats.mu.Unlock()
	klog.V(1).Infof("emulator: compiled %s", k)
	return p, nil
}

// compile checks k against the device the way shader creation would.
func (s *Session) compile(k device.Kernel) (kernelFunc, error) {
	run, ok := kernels[k.Kind]
	if !ok {
		return nil, errors.Errorf("unknown kernel kind %d", int(k.Kind))
	}
	if k.WorkgroupSize == 0 || k.WorkgroupSize > s.cfg.Limits.MaxWorkgroupSize {
		return nil, errors.Errorf("workgroup size %d outside [1, %d]", k.WorkgroupSize, s.cfg.Limits.MaxWorkgroupSize)
	}
	if bits.OnesCount32(k.WorkgroupSize) != 1 {
		return nil, errors.Errorf("workgroup size %d is not a power of two", k.WorkgroupSize)
	}
	if k.WorkgroupsPerTile == 0 || k.GridX == 0 {
		return nil, errors.Errorf("tile %d and grid width %d must be positive", k.WorkgroupsPerTile, k.GridX)
	}
	if k.Kind.UsesSubgroups() && !s.cfg.SubgroupReduction {
		return nil, errors.New("device does not support subgroups")
	}
	return run, nil
}
