// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU compute device.
//
// The GPU path is built on Windows (go-webgpu with wgpu-native). On other
// platforms New returns an error and IsAvailable reports false.
//
// Example:
//
//	import (
//	    "github.com/born-ml/reducebench/backend/emulator"
//	    "github.com/born-ml/reducebench/backend/webgpu"
//	    "github.com/born-ml/reducebench/benchmark"
//	)
//
//	func main() {
//	    var dev benchmark.Session
//	    if webgpu.IsAvailable() {
//	        dev, _ = webgpu.New(webgpu.DefaultConfig())
//	    } else {
//	        dev, _ = emulator.New(emulator.DefaultConfig())
//	    }
//	    defer dev.Release()
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/reducebench/internal/backend/webgpu"
	"github.com/born-ml/reducebench/internal/device"
)

// Config selects the limits and features the device advertises.
type Config = internalwebgpu.Config

// DefaultConfig returns the WebGPU guaranteed limits with subgroups
// disabled.
func DefaultConfig() Config {
	return internalwebgpu.DefaultConfig()
}

// New opens the high-performance GPU adapter.
//
// Call Release() when done to free GPU resources. Returns an error wrapping
// device.ErrDeviceUnavailable if no adapter can be opened.
func New(cfg Config) (device.Session, error) {
	s, err := internalwebgpu.New(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// IsAvailable checks if WebGPU is available on the current system.
//
// This function attempts to initialize a WebGPU adapter to verify
// that a compatible GPU and drivers are present. It's useful for
// graceful fallback to the emulator when GPU is not available.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
