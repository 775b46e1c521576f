package report

import (
	"sync"

	"k8s.io/klog/v2"
)

// Collector gathers completed sizes into a Document. It satisfies the
// orchestrator's observer interface.
type Collector struct {
	mu  sync.Mutex
	doc *Document
}

// NewCollector collects into doc.
func NewCollector(doc *Document) *Collector {
	return &Collector{doc: doc}
}

// StateChanged is a no-op; collectors only record outcomes.
func (c *Collector) StateChanged(Stage, string, uint32) {}

// CellUpdated logs cells that finished.
func (c *Collector) CellUpdated(cell Cell) {
	switch cell.State {
	case CellCompleted:
		klog.V(1).Infof("%s %s: %s over %d runs", cell.Strategy, FormatCount(cell.ElementCount),
			FormatMs(*cell.MeanMs), cell.Stats.Runs)
	case CellError:
		klog.V(1).Infof("%s %s: error: %s", cell.Strategy, FormatCount(cell.ElementCount), cell.Error)
	}
}

// SizeCompleted appends s to the document.
func (c *Collector) SizeCompleted(s SizeSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc.Sizes = append(c.doc.Sizes, s)
}

// Document returns the collected document.
func (c *Collector) Document() *Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}
