// Package config loads the benchmark configuration file.
//
// A configuration file is YAML with three sections:
//
//	benchmark:
//	  minElementCount: 131072
//	  maxElementCount: 33554432
//	  runLimit: 500
//	  runLimitType: duration
//	  pattern: ones
//	  strategies: [cpu, tile, vector]
//	device:
//	  kind: auto
//	  subgroups: false
//	output:
//	  format: table
//	  plot: sum.png
//
// Omitted fields keep the values from Default.
package config

import (
	"io"
	"math/bits"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/reducebench/internal/backend/emulator"
	"github.com/born-ml/reducebench/internal/bench"
	"github.com/born-ml/reducebench/internal/device"
	"github.com/born-ml/reducebench/internal/input"
	"github.com/born-ml/reducebench/internal/reduce"
	"github.com/born-ml/reducebench/internal/report"
)

// ErrInvalidConfig is returned for configurations that fail validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// DeviceKind selects the compute device.
type DeviceKind string

// Device kinds.
const (
	// DeviceAuto uses WebGPU when an adapter is available, else the emulator.
	DeviceAuto     DeviceKind = "auto"
	DeviceWebGPU   DeviceKind = "webgpu"
	DeviceEmulator DeviceKind = "emulator"
)

// Benchmark is the benchmark section.
type Benchmark struct {
	MinElementCount  uint32   `yaml:"minElementCount"`
	MaxElementCount  uint32   `yaml:"maxElementCount"`
	RunLimit         uint32   `yaml:"runLimit"`
	RunLimitType     string   `yaml:"runLimitType"`
	Pattern          string   `yaml:"pattern"`
	Seed             int64    `yaml:"seed"`
	Strategies       []string `yaml:"strategies,omitempty"`
	MaxWorkgroupSize uint32   `yaml:"maxWorkgroupSize,omitempty"`
}

// Device is the device section. Zero limits keep the device defaults.
type Device struct {
	Kind               DeviceKind `yaml:"kind"`
	MaxWorkgroupSize   uint32     `yaml:"maxWorkgroupSize,omitempty"`
	MaxDispatchPerAxis uint32     `yaml:"maxDispatchPerAxis,omitempty"`
	MaxBufferSize      uint64     `yaml:"maxBufferSize,omitempty"`
	Subgroups          bool       `yaml:"subgroups"`
	SubgroupSize       uint32     `yaml:"subgroupSize,omitempty"`
	Workers            int        `yaml:"workers,omitempty"` // Emulator worker goroutines, 0 for NumCPU.
}

// Output is the output section.
type Output struct {
	Format   string `yaml:"format"`
	Path     string `yaml:"path,omitempty"` // Empty writes to stdout.
	Plot     string `yaml:"plot,omitempty"` // Chart image path, empty for none.
	Progress bool   `yaml:"progress"`
	Color    string `yaml:"color"`
}

// Config is a complete configuration file.
type Config struct {
	Benchmark Benchmark `yaml:"benchmark"`
	Device    Device    `yaml:"device"`
	Output    Output    `yaml:"output"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	b := bench.DefaultConfig()
	return Config{
		Benchmark: Benchmark{
			MinElementCount: b.MinElementCount,
			MaxElementCount: b.MaxElementCount,
			RunLimit:        b.RunLimit,
			RunLimitType:    string(b.RunLimitType),
			Pattern:         string(b.Pattern),
		},
		Device: Device{Kind: DeviceAuto},
		Output: Output{
			Format:   string(report.FormatTable),
			Progress: true,
			Color:    string(report.ColorAuto),
		},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "config: open %s", path)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, errors.Wrapf(ErrInvalidConfig, "%s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.WithMessage(err, path)
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Bench().Validate(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "benchmark: %v", err)
	}
	switch input.Pattern(c.Benchmark.Pattern) {
	case input.Ones, input.Random, input.Sequence:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown pattern %q", c.Benchmark.Pattern)
	}
	switch c.Device.Kind {
	case DeviceAuto, DeviceWebGPU, DeviceEmulator:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown device kind %q", c.Device.Kind)
	}
	if w := c.Device.MaxWorkgroupSize; w != 0 && bits.OnesCount32(w) != 1 {
		return errors.Wrapf(ErrInvalidConfig, "device maxWorkgroupSize %d is not a power of two", w)
	}
	if c.Device.Workers < 0 {
		return errors.Wrapf(ErrInvalidConfig, "negative worker count %d", c.Device.Workers)
	}
	switch report.Format(c.Output.Format) {
	case report.FormatTable, report.FormatJSON, report.FormatYAML:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown output format %q", c.Output.Format)
	}
	switch report.ColorMode(c.Output.Color) {
	case report.ColorAuto, report.ColorAlways, report.ColorNever:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown color mode %q", c.Output.Color)
	}
	return nil
}

// Bench returns the orchestrator configuration.
func (c Config) Bench() bench.Config {
	return bench.Config{
		MinElementCount: c.Benchmark.MinElementCount,
		MaxElementCount: c.Benchmark.MaxElementCount,
		RunLimit:        c.Benchmark.RunLimit,
		RunLimitType:    bench.RunLimitType(c.Benchmark.RunLimitType),
		Pattern:         input.Pattern(c.Benchmark.Pattern),
		Seed:            c.Benchmark.Seed,
		Strategies:      c.Benchmark.Strategies,
		Strategy:        reduce.Options{MaxWorkgroupSize: c.Benchmark.MaxWorkgroupSize},
	}
}

// Limits applies the configured overrides to base.
func (d Device) Limits(base device.Limits) device.Limits {
	if d.MaxWorkgroupSize != 0 {
		base.MaxWorkgroupSize = d.MaxWorkgroupSize
	}
	if d.MaxDispatchPerAxis != 0 {
		base.MaxDispatchPerAxis = d.MaxDispatchPerAxis
	}
	if d.MaxBufferSize != 0 {
		base.MaxBufferSize = d.MaxBufferSize
	}
	return base
}

// Emulator returns the emulator configuration for this device section.
// The emulator always advertises subgroup reduction; Subgroups only gates
// real hardware.
func (d Device) Emulator() emulator.Config {
	cfg := emulator.DefaultConfig()
	cfg.Limits = d.Limits(cfg.Limits)
	if d.SubgroupSize != 0 {
		cfg.SubgroupSize = d.SubgroupSize
	}
	if d.Workers > 0 {
		cfg.Parallel.NumWorkers = d.Workers
	}
	if d.Workers == 1 {
		cfg.Parallel.Enabled = false
	}
	return cfg
}
