package report

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

// ProgressbarStyle is the theme used by Progress.
var ProgressbarStyle = progressbar.ThemeASCII

// Progress shows a progress bar over every (strategy, size) cell.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress creates a bar for total cells, drawn on w.
func NewProgress(w io.Writer, total int) *Progress {
	return &Progress{
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetTheme(ProgressbarStyle),
			progressbar.OptionSetDescription("benchmark"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		),
	}
}

// StateChanged shows the current stage in the bar's description.
func (p *Progress) StateChanged(stage Stage, strategy string, n uint32) {
	if strategy == "" {
		p.bar.Describe(fmt.Sprintf("%-14s %s", FormatCount(n), stage))
		return
	}
	p.bar.Describe(fmt.Sprintf("%-14s %-13s %s", FormatCount(n), strategy, stage))
}

// CellUpdated advances the bar once per finished cell.
func (p *Progress) CellUpdated(c Cell) {
	if c.State == CellCompleted || c.State == CellError {
		_ = p.bar.Add(1)
	}
}

// SizeCompleted is a no-op.
func (p *Progress) SizeCompleted(SizeSummary) {}

// Finish completes the bar.
func (p *Progress) Finish() {
	_ = p.bar.Finish()
}
