// Package webgpu implements device.Session on a real GPU through WebGPU.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// The GPU path is built on Windows only; elsewhere New reports
// device.ErrDeviceUnavailable and callers fall back to the emulator.
package webgpu

import "github.com/born-ml/reducebench/internal/device"

// Config selects the limits and features the session advertises.
type Config struct {
	// Limits default to the values every WebGPU implementation guarantees.
	// New lowers them to the adapter's limits.
	Limits device.Limits

	// Subgroups enables the subgroup strategies. Kernels then declare
	// `enable subgroups;`; adapters without the feature fail pipeline
	// creation.
	Subgroups bool

	// SubgroupSize is reported in the capabilities; 0 if unknown.
	SubgroupSize uint32
}

// DefaultConfig returns the WebGPU default limits with subgroups disabled.
func DefaultConfig() Config {
	return Config{Limits: device.DefaultLimits()}
}

func (c Config) capabilities(adapter device.AdapterInfo) device.Capabilities {
	caps := device.Capabilities{
		Limits:            c.Limits,
		SubgroupReduction: c.Subgroups,
		Adapter:           adapter,
	}
	if c.Subgroups {
		caps.SubgroupSize = c.SubgroupSize
	}
	return caps
}
