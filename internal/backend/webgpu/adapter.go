package webgpu

import (
	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/reducebench/internal/device"
)

var backendNames = map[wgpu.BackendType]string{
	wgpu.BackendTypeNull:     "null",
	wgpu.BackendTypeWebGPU:   "webgpu",
	wgpu.BackendTypeD3D11:    "d3d11",
	wgpu.BackendTypeD3D12:    "d3d12",
	wgpu.BackendTypeMetal:    "metal",
	wgpu.BackendTypeVulkan:   "vulkan",
	wgpu.BackendTypeOpenGL:   "opengl",
	wgpu.BackendTypeOpenGLES: "opengles",
}

// adapterInfo converts the adapter description. info may be nil when the
// adapter could not describe itself.
func adapterInfo(info *wgpu.AdapterInfoGo) device.AdapterInfo {
	a := device.AdapterInfo{Name: "WebGPU", Backend: "webgpu"}
	if info == nil {
		return a
	}
	if info.Device != "" {
		a.Name = info.Device
	} else if info.Description != "" {
		a.Name = info.Description
	}
	a.Vendor = info.Vendor
	a.Architecture = info.Architecture
	if name, ok := backendNames[info.BackendType]; ok {
		a.Backend = "webgpu/" + name
	}
	return a
}

// deviceLimits lowers each requested limit to what the adapter supports.
// The device is opened without required limits, so the requested values
// (WebGPU defaults unless configured) are the ceiling. Zero adapter fields
// are unknown and leave the request unchanged.
func deviceLimits(requested device.Limits, adapter *wgpu.Limits) device.Limits {
	if adapter == nil {
		return requested
	}
	l := requested
	if v := adapter.MaxComputeInvocationsPerWorkgroup; v != 0 {
		l.MaxWorkgroupSize = min(l.MaxWorkgroupSize, v)
	}
	if v := adapter.MaxComputeWorkgroupsPerDimension; v != 0 {
		l.MaxDispatchPerAxis = min(l.MaxDispatchPerAxis, v)
	}
	if v := adapter.MaxStorageBufferBindingSize; v != 0 {
		l.MaxBufferSize = min(l.MaxBufferSize, v)
	}
	if v := adapter.MaxBufferSize; v != 0 {
		l.MaxBufferSize = min(l.MaxBufferSize, v)
	}
	return l
}
