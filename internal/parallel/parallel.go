// Package parallel fans host-side work out over a bounded set of goroutines.
// The emulator uses it to run the workgroups of one dispatch concurrently.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// Sequential returns a config that runs everything on the calling goroutine.
func Sequential() Config {
	return Config{Enabled: false, NumWorkers: 1, MinChunkSize: 1}
}

// ForChunks splits [0, n) into contiguous chunks and calls f(start, end) for
// each, at most NumWorkers at a time. The first error stops scheduling of
// further chunks and is returned once running chunks finish.
func ForChunks(n int, cfg Config, f func(start, end int) error) error {
	if n <= 0 {
		return nil
	}
	workers := max(cfg.NumWorkers, 1)
	if !cfg.Enabled || workers == 1 || n < cfg.MinChunkSize {
		return f(0, n)
	}

	// Each worker takes a handful of chunks so stragglers even out.
	chunkSize := max((n+workers*4-1)/(workers*4), cfg.MinChunkSize, 1)

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for start := 0; start < n && ctx.Err() == nil; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			return f(start, end)
		})
	}
	return g.Wait()
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	_ = ForChunks(n, cfg, func(start, end int) error {
		for i := start; i < end; i++ {
			f(i)
		}
		return nil
	})
}
