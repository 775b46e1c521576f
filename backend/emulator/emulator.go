// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package emulator

import (
	internalemulator "github.com/born-ml/reducebench/internal/backend/emulator"
	"github.com/born-ml/reducebench/internal/device"
)

// Session is an open emulated device.
type Session = internalemulator.Session

// Config configures the emulated device: advertised limits, subgroup
// support and worker pool.
type Config = internalemulator.Config

// Compile-time check that Session implements device.Session.
var _ device.Session = (*Session)(nil)

// DefaultConfig returns the WebGPU default limits with 32-lane subgroups
// and one worker per CPU.
func DefaultConfig() Config {
	return internalemulator.DefaultConfig()
}

// New opens an emulated device. Call Release() when done.
//
// Returns an error wrapping device.ErrDeviceUnavailable for invalid limits.
func New(cfg Config) (*Session, error) {
	return internalemulator.New(cfg)
}
