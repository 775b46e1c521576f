package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/reducebench/internal/config"
	"github.com/born-ml/reducebench/internal/report"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"cpu", "tile"}, splitList(" cpu, ,tile,"))
	assert.Nil(t, splitList(""))
}

func TestOpenDevice_Emulator(t *testing.T) {
	sess, err := openDevice(config.Device{Kind: config.DeviceEmulator, MaxDispatchPerAxis: 32})
	require.NoError(t, err)
	defer sess.Release()
	assert.Equal(t, "emulator", sess.Capabilities().Adapter.Backend)
	assert.Equal(t, uint32(32), sess.Capabilities().Limits.MaxDispatchPerAxis)
}

func TestList(t *testing.T) {
	sess, err := openDevice(config.Device{Kind: config.DeviceEmulator})
	require.NoError(t, err)
	defer sess.Release()

	var buf bytes.Buffer
	list(&buf, sess, config.Default().Bench())
	assert.Contains(t, buf.String(), "software emulator")
	assert.Contains(t, buf.String(), "128 MiB per buffer")
	assert.Contains(t, buf.String(), "subgroup-tile")
}

func TestRun_WritesReportAndPlot(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Benchmark.MinElementCount = 1 << 8
	cfg.Benchmark.MaxElementCount = 1 << 9
	cfg.Benchmark.RunLimit = 2
	cfg.Benchmark.RunLimitType = "count"
	cfg.Benchmark.Strategies = []string{"cpu", "tile", "recursive"}
	cfg.Device.Kind = config.DeviceEmulator
	cfg.Output.Format = "json"
	cfg.Output.Path = filepath.Join(dir, "report.json")
	cfg.Output.Plot = filepath.Join(dir, "report.png")
	cfg.Output.Progress = false
	require.NoError(t, cfg.Validate())

	sess, err := openDevice(cfg.Device)
	require.NoError(t, err)
	defer sess.Release()

	require.NoError(t, run(sess, cfg))

	data, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	var doc report.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, []string{"cpu", "tile", "recursive"}, doc.Strategies)
	assert.Equal(t, "2 runs", doc.RunLimit)
	require.Len(t, doc.Sizes, 2)
	assert.Empty(t, doc.Errors())
	assert.FileExists(t, cfg.Output.Plot)
}
