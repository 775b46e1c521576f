//go:build windows

package webgpu

import (
	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/reducebench/internal/device"
)

// pipeline is a compiled kernel with its auto-generated bind group layout.
type pipeline struct {
	session *Session
	kernel  device.Kernel
	raw     *wgpu.ComputePipeline
	layout  *wgpu.BindGroupLayout
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

func (p *pipeline) release() {
	if p.layout != nil {
		p.layout.Release()
		p.layout = nil
	}
	if p.raw != nil {
		p.raw.Release()
		p.raw = nil
	}
}

// Pipeline returns the cached pipeline for k, compiling it on a miss.
func (s *Session) Pipeline(k device.Kernel) (device.Pipeline, error) {
	if s.released {
		return nil, errors.Wrapf(device.ErrReleased, "pipeline %s", k)
	}
	if k.Kind.UsesSubgroups() && !s.cfg.Subgroups {
		return nil, device.PipelineAllocationError(k, errors.New("subgroups are not enabled"))
	}
	if k.WorkgroupSize > s.cfg.Limits.MaxWorkgroupSize {
		return nil, device.PipelineAllocationError(k,
			errors.Errorf("workgroup size %d exceeds %d", k.WorkgroupSize, s.cfg.Limits.MaxWorkgroupSize))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pipelines[k]; ok {
		s.memoryStats.mu.Lock()
		s.memoryStats.cacheHits++
		s.memoryStats.mu.Unlock()
		return p, nil
	}

	p, err := s.compile(k)
	if err != nil {
		return nil, device.PipelineAllocationError(k, err)
	}
	s.pipelines[k] = p

	s.memoryStats.mu.Lock()
	s.memoryStats.compiled++
	s.memoryStats.mu.Unlock()
	klog.V(1).Infof("webgpu: compiled %s", k)
	return p, nil
}

// compile renders and compiles the shader for k. Invalid WGSL panics inside
// the binding; the panic becomes the returned error.
func (s *Session) compile(k device.Kernel) (p *pipeline, err error) {
	code, err := renderShader(k)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = errors.Errorf("compile: %v", r)
		}
	}()

	shader, ok := s.shaders[k]
	if !ok {
		shader = s.device.CreateShaderModuleWGSL(code)
		if shader == nil {
			return nil, errors.New("shader module creation failed")
		}
		s.shaders[k] = shader
	}

	// Create compute pipeline with auto layout (nil layout)
	raw := s.device.CreateComputePipelineSimple(nil, shader, "main")
	if raw == nil {
		return nil, errors.New("compute pipeline creation failed")
	}
	return &pipeline{session: s, kernel: k, raw: raw, layout: raw.GetBindGroupLayout(0)}, nil
}

// EvictPipelines releases every cached pipeline and shader module.
func (s *Session) EvictPipelines() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pipelines) > 0 {
		klog.V(1).Infof("webgpu: evicting %d pipelines", len(s.pipelines))
	}
	for _, p := range s.pipelines {
		p.release()
	}
	for _, sh := range s.shaders {
		sh.Release()
	}
	clear(s.pipelines)
	clear(s.shaders)
}
