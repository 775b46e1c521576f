package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/reducebench/internal/bench"
	"github.com/born-ml/reducebench/internal/device"
	"github.com/born-ml/reducebench/internal/input"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reducebench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	b := cfg.Bench()
	assert.Equal(t, uint32(1<<17), b.MinElementCount)
	assert.Equal(t, uint32(1<<25), b.MaxElementCount)
	assert.Equal(t, uint32(500), b.RunLimit)
	assert.Equal(t, bench.RunLimitDuration, b.RunLimitType)
	assert.Equal(t, input.Ones, b.Pattern)
	assert.Equal(t, DeviceAuto, cfg.Device.Kind)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
benchmark:
  minElementCount: 1024
  maxElementCount: 4096
  runLimit: 10
  runLimitType: count
  pattern: random
  seed: 7
  strategies: [cpu, vector]
device:
  kind: emulator
  maxDispatchPerAxis: 16
  workers: 2
output:
  format: json
  plot: out.png
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	b := cfg.Bench()
	assert.Equal(t, []uint32{1024, 2048, 4096}, b.Sizes())
	assert.Equal(t, bench.RunLimitCount, b.RunLimitType)
	assert.Equal(t, input.Random, b.Pattern)
	assert.Equal(t, int64(7), b.Seed)
	assert.Equal(t, []string{"cpu", "vector"}, b.Strategies)

	assert.Equal(t, DeviceEmulator, cfg.Device.Kind)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, "out.png", cfg.Output.Plot)
	assert.Equal(t, "auto", cfg.Output.Color, "unset fields keep defaults")
	assert.True(t, cfg.Output.Progress)

	em := cfg.Device.Emulator()
	assert.Equal(t, uint32(16), em.Limits.MaxDispatchPerAxis)
	assert.Equal(t, uint32(256), em.Limits.MaxWorkgroupSize)
	assert.Equal(t, 2, em.Parallel.NumWorkers)
}

func TestLoad_Empty(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	tests := map[string]string{
		"unknown field":    "benchmark:\n  iterations: 3\n",
		"bad yaml":         "benchmark: [",
		"not pow2":         "benchmark:\n  minElementCount: 1000\n",
		"bad limit type":   "benchmark:\n  runLimitType: forever\n",
		"bad pattern":      "benchmark:\n  pattern: zeros\n",
		"unknown strategy": "benchmark:\n  strategies: [webgl]\n",
		"bad device":       "device:\n  kind: cuda\n",
		"negative workers": "device:\n  workers: -1\n",
		"workgroup size":   "benchmark:\n  maxWorkgroupSize: 96\n",
		"device workgroup": "device:\n  maxWorkgroupSize: 48\n",
		"bad format":       "output:\n  format: csv\n",
		"bad color":        "output:\n  color: sometimes\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, content))
			assert.True(t, errors.Is(err, ErrInvalidConfig), "%v", err)
		})
	}
}

func TestLoad_WorkgroupSize(t *testing.T) {
	cfg, err := Load(writeFile(t, "benchmark:\n  maxWorkgroupSize: 128\ndevice:\n  maxWorkgroupSize: 256\n"))
	require.NoError(t, err)
	assert.Equal(t, uint32(128), cfg.Bench().Strategy.MaxWorkgroupSize)
	assert.Equal(t, uint32(256), cfg.Device.MaxWorkgroupSize)
}

func TestDeviceLimits(t *testing.T) {
	base := device.DefaultLimits()
	assert.Equal(t, base, Device{}.Limits(base))

	got := Device{MaxWorkgroupSize: 64, MaxBufferSize: 1 << 20}.Limits(base)
	assert.Equal(t, uint32(64), got.MaxWorkgroupSize)
	assert.Equal(t, base.MaxDispatchPerAxis, got.MaxDispatchPerAxis)
	assert.Equal(t, uint64(1<<20), got.MaxBufferSize)
}

func TestDeviceEmulator_SingleWorker(t *testing.T) {
	em := Device{Workers: 1, SubgroupSize: 16}.Emulator()
	assert.False(t, em.Parallel.Enabled)
	assert.Equal(t, uint32(16), em.SubgroupSize)
	assert.True(t, em.SubgroupReduction)
}
