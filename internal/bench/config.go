package bench

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/pkg/errors"

	"github.com/born-ml/reducebench/internal/input"
	"github.com/born-ml/reducebench/internal/reduce"
)

// RunLimitType selects the stopping rule for timed runs.
type RunLimitType string

// Stopping rules.
const (
	// RunLimitCount performs exactly RunLimit timed runs.
	RunLimitCount RunLimitType = "count"
	// RunLimitDuration keeps starting runs until RunLimit milliseconds have
	// passed since the first timed run. The check happens after each run,
	// so the last run may overshoot.
	RunLimitDuration RunLimitType = "duration"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("bench: invalid configuration")

// Config describes one benchmark.
type Config struct {
	MinElementCount uint32       // Smallest input, a power of two.
	MaxElementCount uint32       // Largest input, a power of two >= MinElementCount.
	RunLimit        uint32       // Run count or duration in milliseconds.
	RunLimitType    RunLimitType // How RunLimit is interpreted.

	Pattern input.Pattern // Input contents.
	Seed    int64         // Seed for input.Random.

	// Strategies restricts the benchmark to the named strategies, in
	// registry order. Empty means every strategy the device supports.
	Strategies []string

	// Strategy tunes strategy setup.
	Strategy reduce.Options
}

// DefaultConfig mirrors the defaults of the browser benchmark: 2^17 to 2^25
// elements, 500 ms per strategy.
func DefaultConfig() Config {
	return Config{
		MinElementCount: 1 << 17,
		MaxElementCount: 1 << 25,
		RunLimit:        500,
		RunLimitType:    RunLimitDuration,
		Pattern:         input.Ones,
	}
}

// Validate checks the element range, run limit and strategy names.
func (c Config) Validate() error {
	isPow2 := func(n uint32) bool { return n != 0 && bits.OnesCount32(n) == 1 }
	switch {
	case !isPow2(c.MinElementCount):
		return errors.Wrapf(ErrInvalidConfig, "minElementCount %d is not a power of two", c.MinElementCount)
	case !isPow2(c.MaxElementCount):
		return errors.Wrapf(ErrInvalidConfig, "maxElementCount %d is not a power of two", c.MaxElementCount)
	case c.MaxElementCount < c.MinElementCount:
		return errors.Wrapf(ErrInvalidConfig, "maxElementCount %d < minElementCount %d", c.MaxElementCount, c.MinElementCount)
	case c.RunLimit == 0:
		return errors.Wrap(ErrInvalidConfig, "runLimit must be positive")
	case c.RunLimitType != RunLimitCount && c.RunLimitType != RunLimitDuration:
		return errors.Wrapf(ErrInvalidConfig, "runLimitType %q is not count or duration", c.RunLimitType)
	case c.Strategy.MaxWorkgroupSize != 0 && !isPow2(c.Strategy.MaxWorkgroupSize):
		return errors.Wrapf(ErrInvalidConfig, "maxWorkgroupSize %d is not a power of two", c.Strategy.MaxWorkgroupSize)
	}
	for _, name := range c.Strategies {
		if _, ok := reduce.Lookup(name); !ok {
			return errors.Wrapf(ErrInvalidConfig, "unknown strategy %q", name)
		}
	}
	return nil
}

// Sizes returns every element count from min to max, doubling.
func (c Config) Sizes() []uint32 {
	var sizes []uint32
	for n := uint64(c.MinElementCount); n <= uint64(c.MaxElementCount) && n > 0; n *= 2 {
		sizes = append(sizes, uint32(n)) //nolint:gosec // G115: n <= MaxElementCount.
	}
	return sizes
}

// Duration returns RunLimit as a duration. Only meaningful for
// RunLimitDuration.
func (c Config) Duration() time.Duration {
	return time.Duration(c.RunLimit) * time.Millisecond
}

// Describe renders the stopping rule, e.g. "500 ms" or "100 runs".
func (c Config) Describe() string {
	if c.RunLimitType == RunLimitCount {
		return fmt.Sprintf("%d runs", c.RunLimit)
	}
	return fmt.Sprintf("%d ms", c.RunLimit)
}
