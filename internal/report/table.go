package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
)

// ColorMode selects when the table uses ANSI colors.
type ColorMode string

// Color modes.
const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// NewRenderer returns a lipgloss renderer for w honoring mode. ColorAuto
// keeps the profile termenv detects for w.
func NewRenderer(w io.Writer, mode ColorMode) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	switch mode {
	case ColorNever:
		r.SetColorProfile(termenv.Ascii)
	case ColorAlways:
		r.SetColorProfile(termenv.ANSI256)
	}
	return r
}

type tableStyles struct {
	header, cell, fastest, slowest, failed lipgloss.Style
}

func newTableStyles(r *lipgloss.Renderer) tableStyles {
	cell := r.NewStyle().PaddingLeft(1).PaddingRight(1)
	return tableStyles{
		header:  r.NewStyle().Reverse(true).Padding(0, 2, 0, 2).Align(lipgloss.Center),
		cell:    cell,
		fastest: cell.Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"}).Bold(true),
		slowest: cell.Foreground(lipgloss.AdaptiveColor{Light: "3", Dark: "11"}),
		failed:  cell.Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).Bold(true),
	}
}

// CellText renders a cell the way the result table shows it.
func CellText(c Cell) string {
	switch c.State {
	case CellCompleted:
		if c.MeanMs != nil {
			return FormatMs(*c.MeanMs)
		}
		return string(c.State)
	case CellError:
		return "ERROR"
	default:
		return string(c.State)
	}
}

// Table builds the result table: one row per strategy, one column per
// element count. The fastest cell of each column is highlighted, the slowest
// dimmed, and failed cells are shown as ERROR.
func Table(doc *Document, r *lipgloss.Renderer) *lgtable.Table {
	st := newTableStyles(r)

	headers := []string{"strategy"}
	for _, s := range doc.Sizes {
		headers = append(headers, FormatCount(s.ElementCount))
	}

	t := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers(headers...)

	for _, name := range doc.Strategies {
		row := []string{name}
		for _, s := range doc.Sizes {
			c, ok := s.Cell(name)
			if !ok {
				row = append(row, "-")
				continue
			}
			row = append(row, CellText(c))
		}
		t.Row(row...)
	}

	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row < 0 {
			return st.header
		}
		if col == 0 || row >= len(doc.Strategies) {
			return st.cell
		}
		size := doc.Sizes[col-1]
		name := doc.Strategies[row]
		if c, ok := size.Cell(name); ok && c.State == CellError {
			return st.failed
		}
		switch name {
		case size.Fastest:
			return st.fastest.Align(lipgloss.Right)
		case size.Slowest:
			return st.slowest.Align(lipgloss.Right)
		}
		return st.cell.Align(lipgloss.Right)
	})
	return t
}

// WriteTable prints the adapter header, the result table and any errors.
func WriteTable(w io.Writer, doc *Document, mode ColorMode) error {
	r := NewRenderer(w, mode)
	if _, err := fmt.Fprintf(w, "Adapter: %s (%s)\nRun limit: %s\n", doc.Adapter, doc.Backend, doc.RunLimit); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, Table(doc, r).Render()); err != nil {
		return err
	}
	for _, c := range doc.Errors() {
		if _, err := fmt.Fprintf(w, "ERROR %s @ %s elements: %s\n", c.Strategy, humanize.Comma(int64(c.ElementCount)), c.Error); err != nil {
			return err
		}
	}
	return nil
}
