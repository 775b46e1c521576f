// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package benchmark compares parallel strategies for summing a uint32 array
// on a compute device.
//
// # Overview
//
// For every element count from MinElementCount to MaxElementCount (powers of
// two, doubling) Run generates one input and, for every strategy the device
// supports:
//   - sets the strategy up (plans dispatches, compiles kernels, allocates buffers)
//   - discards one warm-up run
//   - repeats timed runs until RunLimit runs or RunLimit milliseconds
//   - checks the result against the first strategy that produced one
//
// Failing strategies are reported per cell and never stop the benchmark.
//
// # Strategies
//
//   - cpu: sequential host fold
//   - atomic: one element per invocation, one atomic add per workgroup
//   - tile: up to 32 elements per invocation
//   - vector: vec4 loads, up to 8 per invocation
//   - recursive: multi-pass partial sums without atomics
//   - subgroup, subgroup-tile: hardware subgroup add (when supported)
//
// # Basic Usage
//
//	dev, _ := emulator.New(emulator.DefaultConfig())
//	defer dev.Release()
//
//	cfg := benchmark.DefaultConfig()
//	cfg.RunLimitType = benchmark.RunLimitCount
//	cfg.RunLimit = 10
//	summaries, err := benchmark.Run(ctx, dev, cfg)
//	for _, s := range summaries {
//	    fmt.Println(s.ElementCount, s.Fastest)
//	}
package benchmark

import (
	"context"

	"github.com/born-ml/reducebench/internal/bench"
	"github.com/born-ml/reducebench/internal/device"
	"github.com/born-ml/reducebench/internal/reduce"
	"github.com/born-ml/reducebench/internal/report"
)

// Session is an open compute device.
type Session = device.Session

// Config describes one benchmark.
type Config = bench.Config

// RunLimitType selects the stopping rule for timed runs.
type RunLimitType = bench.RunLimitType

// Stopping rules.
const (
	RunLimitCount    = bench.RunLimitCount
	RunLimitDuration = bench.RunLimitDuration
)

// Observer receives progress while a benchmark runs.
type Observer = bench.Observer

// SizeSummary is the outcome of every strategy at one element count.
type SizeSummary = report.SizeSummary

// Cell is the outcome of one strategy at one element count.
type Cell = report.Cell

// Errors reported in cells or returned by Run.
var (
	ErrInvalidConfig     = bench.ErrInvalidConfig
	ErrResultMismatch    = bench.ErrResultMismatch
	ErrDeviceUnavailable = device.ErrDeviceUnavailable
)

// DefaultConfig returns 2^17 to 2^25 elements, 500 ms per strategy.
func DefaultConfig() Config {
	return bench.DefaultConfig()
}

// Run benchmarks every selected strategy at every size on s.
func Run(ctx context.Context, s Session, cfg Config, observers ...Observer) ([]SizeSummary, error) {
	return bench.Run(ctx, s, cfg, observers...)
}

// Strategies returns the names of every strategy, in benchmark order.
func Strategies() []string {
	return reduce.Names(reduce.Registry())
}

// Available returns the names of the strategies s can run.
func Available(s Session) []string {
	return reduce.Names(reduce.Available(s.Capabilities()))
}
