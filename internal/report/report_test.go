package report

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func completed(name string, n uint32, times ...float64) Cell {
	c := Cell{Strategy: name, ElementCount: n, State: CellRunning, Result: n}
	for _, ms := range times {
		c.Stats.Add(ms)
	}
	c.Complete()
	return c
}

func sampleDocument() *Document {
	doc := NewDocument("software emulator", "emulator", "count 3", []string{"cpu", "atomic", "tile"})
	for _, n := range []uint32{1 << 10, 1 << 11} {
		failed := Cell{Strategy: "tile", ElementCount: n}
		failed.Fail(errors.New("result mismatch"))
		s := SizeSummary{
			ElementCount: n,
			Oracle:       n,
			OracleFrom:   "cpu",
			Cells: []Cell{
				completed("cpu", n, 1, 2, 3),
				completed("atomic", n, 0.5, 0.25),
				failed,
			},
		}
		s.Rank()
		doc.Sizes = append(doc.Sizes, s)
	}
	return doc
}

func TestStats(t *testing.T) {
	var s Stats
	assert.Equal(t, 0.0, s.Mean())

	for _, ms := range []float64{3, 1, 2} {
		s.Add(ms)
	}
	assert.Equal(t, 3, s.Runs)
	assert.InDelta(t, 2.0, s.Mean(), 1e-12)
	assert.Equal(t, 1.0, s.MinMs)
	assert.Equal(t, 3.0, s.MaxMs)
}

func TestCell_FailDropsMean(t *testing.T) {
	c := completed("cpu", 8, 1)
	require.NotNil(t, c.MeanMs)

	c.Fail(errors.New("boom"))
	assert.Equal(t, CellError, c.State)
	assert.Nil(t, c.MeanMs)
	assert.Equal(t, "boom", c.Error)
}

func TestRank_IgnoresFailedCells(t *testing.T) {
	doc := sampleDocument()
	s := doc.Sizes[0]

	assert.Equal(t, "atomic", s.Fastest)
	assert.Equal(t, "cpu", s.Slowest)

	empty := SizeSummary{Cells: []Cell{{Strategy: "x", State: CellError}}}
	empty.Rank()
	assert.Empty(t, empty.Fastest)
	assert.Empty(t, empty.Slowest)
}

func TestRank_TieKeepsFirst(t *testing.T) {
	s := SizeSummary{Cells: []Cell{completed("a", 4, 1), completed("b", 4, 1)}}
	s.Rank()
	assert.Equal(t, "a", s.Fastest)
	assert.Equal(t, "a", s.Slowest)
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "1048576 (2²⁰)", FormatCount(1<<20))
	assert.Equal(t, "131072 (2¹⁷)", FormatCount(1<<17))
	assert.Equal(t, "1 (2⁰)", FormatCount(1))
	assert.Equal(t, "96", FormatCount(96))
}

func TestFormatMs(t *testing.T) {
	assert.Equal(t, "1.235 ms", FormatMs(1.23456))
	assert.Equal(t, "2 ms", FormatMs(2))
	assert.Equal(t, "0.5 ms", FormatMs(0.5))
}

func TestCellText(t *testing.T) {
	doc := sampleDocument()
	c, ok := doc.Sizes[0].Cell("tile")
	require.True(t, ok)
	assert.Equal(t, "ERROR", CellText(c))

	c, _ = doc.Sizes[0].Cell("atomic")
	assert.Equal(t, "0.375 ms", CellText(c))

	assert.Equal(t, "ready", CellText(Cell{State: CellReady}))
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleDocument(), FormatTable, ColorNever))

	out := buf.String()
	assert.Contains(t, out, "software emulator")
	assert.Contains(t, out, "1024 (2¹⁰)")
	assert.Contains(t, out, "2048 (2¹¹)")
	assert.Contains(t, out, "0.375 ms")
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "ERROR tile @ 1,024 elements: result mismatch")
	assert.NotContains(t, out, "\x1b[", "no escape codes without color")
}

func TestWrite_JSON(t *testing.T) {
	doc := sampleDocument()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, doc, FormatJSON, ColorNever))

	var got Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, doc.RunID, got.RunID)
	require.Len(t, got.Sizes, 2)
	assert.Equal(t, "atomic", got.Sizes[1].Fastest)

	tile, ok := got.Sizes[0].Cell("tile")
	require.True(t, ok)
	assert.Equal(t, CellError, tile.State)
	assert.Nil(t, tile.MeanMs)
	assert.Equal(t, "result mismatch", tile.Error)
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleDocument(), FormatYAML, ColorNever))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "emulator", got["backend"])
	assert.True(t, strings.Contains(buf.String(), "oracleFrom: cpu"))
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, sampleDocument(), Format("csv"), ColorNever)
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestCollector(t *testing.T) {
	doc := NewDocument("a", "b", "c", []string{"cpu"})
	c := NewCollector(doc)
	c.StateChanged(Running, "cpu", 4)
	c.CellUpdated(completed("cpu", 4, 1))
	c.SizeCompleted(SizeSummary{ElementCount: 4})

	require.Len(t, c.Document().Sizes, 1)
	assert.NotEmpty(t, c.Document().RunID)
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 2)
	p.StateChanged(GeneratingInput, "", 4)
	p.StateChanged(Running, "cpu", 4)
	p.CellUpdated(Cell{State: CellRunning})
	p.CellUpdated(completed("cpu", 4, 1))
	p.CellUpdated(Cell{State: CellError})
	p.Finish()
}

func TestPlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sum.png")
	require.NoError(t, Plot(sampleDocument(), path))
	assert.FileExists(t, path)

	empty := NewDocument("a", "b", "c", []string{"cpu"})
	assert.Error(t, Plot(empty, filepath.Join(t.TempDir(), "empty.png")))
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "warm-up", WarmUp.String())
	assert.Equal(t, "Stage(9)", Stage(9).String())
}
