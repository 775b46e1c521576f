// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package benchmark_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/reducebench/backend/emulator"
	"github.com/born-ml/reducebench/benchmark"
)

func TestStrategies(t *testing.T) {
	assert.Equal(t, []string{"cpu", "atomic", "tile", "vector", "recursive", "subgroup", "subgroup-tile"}, benchmark.Strategies())
}

func TestRun(t *testing.T) {
	dev, err := emulator.New(emulator.DefaultConfig())
	require.NoError(t, err)
	defer dev.Release()

	assert.Equal(t, benchmark.Strategies(), benchmark.Available(dev))

	cfg := benchmark.DefaultConfig()
	cfg.MinElementCount = 1 << 10
	cfg.MaxElementCount = 1 << 11
	cfg.RunLimitType = benchmark.RunLimitCount
	cfg.RunLimit = 2

	summaries, err := benchmark.Run(context.Background(), dev, cfg)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	for _, s := range summaries {
		assert.Equal(t, s.ElementCount, s.Oracle)
		assert.Empty(t, s.Cells[0].Error)
	}
}
