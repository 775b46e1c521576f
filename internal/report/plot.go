package report

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Plot saves a chart of mean run time against element count, one line per
// strategy, to path. The image format follows the file extension. Failed
// cells leave gaps in their line.
func Plot(doc *Document, path string) error {
	p := plot.New()
	p.Title.Text = "Sum benchmark: " + doc.Adapter
	p.X.Label.Text = "elements"
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Y.Label.Text = "mean time (ms)"
	p.Legend.Top = true
	p.Legend.Left = true

	var lines []any
	for _, name := range doc.Strategies {
		var pts plotter.XYs
		for _, s := range doc.Sizes {
			c, ok := s.Cell(name)
			if !ok || c.State != CellCompleted || c.MeanMs == nil {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(s.ElementCount), Y: *c.MeanMs})
		}
		if len(pts) > 0 {
			lines = append(lines, name, pts)
		}
	}
	if len(lines) == 0 {
		return errors.New("report: nothing to plot")
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return errors.Wrap(err, "report: plot")
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "report: save plot %s", path)
	}
	return nil
}
