// Package bench runs reduction strategies over a range of input sizes and
// cross-checks their results.
//
// For every size the orchestrator generates one input, then for every
// strategy: sets it up, discards one warm-up run, repeats timed runs under a
// count or duration rule, and compares the final result with the oracle, the
// first result produced at that size. Failures are recorded per cell and
// never abort the benchmark.
package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"k8s.io/klog/v2"

	"github.com/born-ml/reducebench/internal/device"
	"github.com/born-ml/reducebench/internal/input"
	"github.com/born-ml/reducebench/internal/reduce"
	"github.com/born-ml/reducebench/internal/report"
)

// ErrResultMismatch marks a strategy whose result disagrees with the oracle
// or with its own earlier runs.
var ErrResultMismatch = errors.New("bench: result mismatch")

// MismatchError describes a disagreeing result.
type MismatchError struct {
	Strategy     string
	ElementCount uint32
	Got, Want    uint32
	Reference    string // Strategy (or "warm-up") that produced Want.
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s at %d elements: got %d, %s reported %d",
		ErrResultMismatch, e.Strategy, e.ElementCount, e.Got, e.Reference, e.Want)
}

// Unwrap returns ErrResultMismatch.
func (e *MismatchError) Unwrap() error {
	return ErrResultMismatch
}

// Observer receives progress from Run. Calls are made from the goroutine
// running the benchmark.
type Observer interface {
	StateChanged(stage report.Stage, strategy string, elementCount uint32)
	CellUpdated(cell report.Cell)
	SizeCompleted(summary report.SizeSummary)
}

// Strategies returns the strategies cfg selects on a device with caps.
func Strategies(caps device.Capabilities, cfg Config) []reduce.Strategy {
	available := reduce.Available(caps)
	if len(cfg.Strategies) == 0 {
		return available
	}
	return lo.Filter(available, func(s reduce.Strategy, _ int) bool {
		return lo.Contains(cfg.Strategies, s.Name())
	})
}

// Run benchmarks every selected strategy at every size in cfg on session s.
//
// Run returns early only for an invalid configuration or a canceled context;
// cancellation is observed before starting a run, never during one.
func Run(ctx context.Context, s device.Session, cfg Config, observers ...Observer) ([]report.SizeSummary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &orchestrator{
		session:    s,
		cfg:        cfg,
		observers:  observers,
		strategies: Strategies(s.Capabilities(), cfg),
	}
	if len(o.strategies) == 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "no selected strategy is supported by the device")
	}
	defer o.state(report.Idle, "", 0)

	var summaries []report.SizeSummary
	for _, n := range cfg.Sizes() {
		summary, err := o.runSize(ctx, n)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

type orchestrator struct {
	session    device.Session
	cfg        Config
	observers  []Observer
	strategies []reduce.Strategy
}

func (o *orchestrator) state(stage report.Stage, strategy string, n uint32) {
	for _, obs := range o.observers {
		obs.StateChanged(stage, strategy, n)
	}
}

func (o *orchestrator) cell(c report.Cell) {
	for _, obs := range o.observers {
		obs.CellUpdated(c)
	}
}

func (o *orchestrator) runSize(ctx context.Context, n uint32) (report.SizeSummary, error) {
	summary := report.SizeSummary{ElementCount: n}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	klog.Infof("%s elements", report.FormatCount(n))

	o.state(report.GeneratingInput, "", n)
	start := time.Now()
	in, err := input.Generate(n, o.cfg.Pattern, o.cfg.Seed)
	if err != nil {
		return summary, errors.Wrapf(err, "generate %d elements", n)
	}
	klog.Infof("generateInput: %s", time.Since(start))

	for _, s := range o.strategies {
		c := report.Cell{Strategy: s.Name(), ElementCount: n, State: report.CellReady}
		summary.Cells = append(summary.Cells, c)
		o.cell(c)
	}

	haveOracle := false
	for i, s := range o.strategies {
		c, err := o.runCell(ctx, s, in)
		if err != nil {
			return summary, err
		}
		if c.State != report.CellError {
			if !haveOracle {
				haveOracle = true
				summary.Oracle, summary.OracleFrom = c.Result, c.Strategy
			} else if c.Result != summary.Oracle {
				c.Fail(errors.WithStack(&MismatchError{
					Strategy: c.Strategy, ElementCount: n,
					Got: c.Result, Want: summary.Oracle, Reference: summary.OracleFrom,
				}))
			}
		}
		if c.State == report.CellError {
			klog.Warningf("%s %s: %v", c.Strategy, report.FormatCount(n), c.Err)
		} else {
			c.Complete()
			klog.Infof("%s %s: result %d, mean %s over %d runs", c.Strategy, report.FormatCount(n),
				c.Result, report.FormatMs(*c.MeanMs), c.Stats.Runs)
		}
		summary.Cells[i] = c
		o.cell(c)
	}

	summary.Rank()
	if summary.Fastest != "" {
		klog.Infof("%s: fastest %s, slowest %s", report.FormatCount(n), summary.Fastest, summary.Slowest)
	}
	o.session.EvictPipelines()
	for _, obs := range o.observers {
		obs.SizeCompleted(summary)
	}
	return summary, nil
}

// runCell benchmarks one strategy on in. Strategy failures end up in the
// returned cell; only context cancellation is returned as an error.
func (o *orchestrator) runCell(ctx context.Context, s reduce.Strategy, in input.Array) (report.Cell, error) {
	n := in.Len()
	c := report.Cell{Strategy: s.Name(), ElementCount: n, State: report.CellRunning}
	if err := ctx.Err(); err != nil {
		return c, err
	}
	o.cell(c)

	o.state(report.Setup, s.Name(), n)
	r, err := s.Setup(ctx, o.session, in, o.cfg.Strategy)
	if err != nil {
		if ctx.Err() != nil {
			return c, ctx.Err()
		}
		c.Fail(err)
		return c, nil
	}
	defer r.Release()

	o.state(report.WarmUp, s.Name(), n)
	warm, err := r.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return c, ctx.Err()
		}
		c.Fail(errors.Wrap(err, "warm-up"))
		return c, nil
	}

	o.state(report.Running, s.Name(), n)
	if err := o.timedRuns(ctx, r, &c, warm.Value); err != nil {
		if ctx.Err() != nil {
			return c, ctx.Err()
		}
		c.Fail(err)
		return c, nil
	}

	o.state(report.Recording, s.Name(), n)
	return c, nil
}

// timedRuns repeats r under the configured stopping rule. Every result must
// match the warm-up result.
func (o *orchestrator) timedRuns(ctx context.Context, r reduce.Runner, c *report.Cell, want uint32) error {
	runOnce := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := r.Run(ctx)
		if err != nil {
			return errors.Wrapf(err, "run %d", c.Stats.Runs+1)
		}
		klog.V(2).Infof("%s %d: time: %.3f ms", c.Strategy, c.ElementCount, res.ElapsedMs)
		if res.Value != want {
			return errors.WithStack(&MismatchError{
				Strategy: c.Strategy, ElementCount: c.ElementCount,
				Got: res.Value, Want: want, Reference: "warm-up",
			})
		}
		c.Result = res.Value
		c.Stats.Add(res.ElapsedMs)
		return nil
	}

	if o.cfg.RunLimitType == RunLimitCount {
		for i := uint32(0); i < o.cfg.RunLimit; i++ {
			if err := runOnce(); err != nil {
				return err
			}
		}
		return nil
	}

	limit := o.cfg.Duration()
	start := time.Now()
	for c.Stats.Runs == 0 || time.Since(start) < limit {
		if err := runOnce(); err != nil {
			return err
		}
	}
	return nil
}
