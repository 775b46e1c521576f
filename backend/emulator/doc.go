// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package emulator provides a pure Go software compute device.
//
// # Overview
//
// The emulator executes the reduction kernels on the host with WebGPU
// semantics:
//   - Pure Go implementation (no CGO, no GPU)
//   - Workgroups of one dispatch run concurrently on a bounded worker pool
//   - Dispatches of one submission run back-to-back on a queue goroutine
//   - Hardware limits (workgroup size, workgroups per axis, buffer size)
//     are configurable, so folding and allocation failures are reproducible
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/reducebench/backend/emulator"
//	    "github.com/born-ml/reducebench/benchmark"
//	)
//
//	func main() {
//	    dev, err := emulator.New(emulator.DefaultConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer dev.Release()
//
//	    cfg := benchmark.DefaultConfig()
//	    summaries, err := benchmark.Run(context.Background(), dev, cfg)
//	}
//
// # Thread Safety
//
// A session is driven from one host goroutine, like a WebGPU device.
package emulator
