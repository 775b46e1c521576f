// Package main provides the reducebench CLI.
//
// Usage:
//
//	reducebench [-config reducebench.yaml] [-min 131072] [-max 33554432]
//	            [-runs 500] [-limit duration] [-device auto] [-format table]
//
// Flags override the configuration file only when given.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/reducebench/internal/bench"
	"github.com/born-ml/reducebench/internal/config"
	"github.com/born-ml/reducebench/internal/device"
	"github.com/born-ml/reducebench/internal/reduce"
	"github.com/born-ml/reducebench/internal/report"
)

const version = "v0.1.0"

var (
	flagConfig = flag.String("config", "", "YAML configuration file. Flags below override its values.")

	flagMin       = flag.Uint("min", 0, "Smallest element count, a power of two.")
	flagMax       = flag.Uint("max", 0, "Largest element count, a power of two.")
	flagRuns      = flag.Uint("runs", 0, "Run limit: number of timed runs (-limit count) or milliseconds (-limit duration).")
	flagLimit     = flag.String("limit", "", "Run limit type: count or duration.")
	flagPattern   = flag.String("pattern", "", "Input pattern: ones, random or sequence.")
	flagSeed      = flag.Int64("seed", 0, "Seed for -pattern random.")
	flagStrats    = flag.String("strategies", "", "Comma-separated strategies to run. Empty runs every supported strategy.")
	flagWorkgroup = flag.Uint("workgroup", 0, "Workgroup size override (power of two).")

	flagDevice    = flag.String("device", "", "Compute device: auto, webgpu or emulator.")
	flagSubgroups = flag.Bool("subgroups", false, "Enable subgroup strategies on WebGPU.")
	flagWorkers   = flag.Int("workers", 0, "Emulator worker goroutines (0 for one per CPU).")

	flagFormat   = flag.String("format", "", "Output format: table, json or yaml.")
	flagOutput   = flag.String("o", "", "Write the report to this file instead of stdout.")
	flagPlot     = flag.String("plot", "", "Save a timing chart to this image file (.png, .svg, .pdf).")
	flagProgress = flag.Bool("progress", true, "Show a progress bar on stderr.")
	flagColor    = flag.String("color", "", "Table colors: auto, always or never.")

	flagList    = flag.Bool("list", false, "List strategies and the selected device, then exit.")
	flagVersion = flag.Bool("version", false, "Print the version and exit.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if *flagVersion {
		fmt.Printf("reducebench %s\n", version)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		klog.Errorf("%v", err)
		klog.Flush()
		os.Exit(1)
	}

	sess, err := openDevice(cfg.Device)
	if err != nil {
		klog.Errorf("%v", err)
		klog.Flush()
		os.Exit(1)
	}
	defer sess.Release()

	if *flagList {
		list(os.Stdout, sess, cfg.Bench())
		return
	}

	if err := run(sess, cfg); err != nil {
		klog.Errorf("%v", err)
		klog.Flush()
		sess.Release()
		os.Exit(1)
	}
}

// loadConfig reads -config (or the defaults) and applies the flags that were
// set on the command line.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *flagConfig != "" {
		var err error
		if cfg, err = config.Load(*flagConfig); err != nil {
			return cfg, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min":
			cfg.Benchmark.MinElementCount = uint32(*flagMin) //nolint:gosec // G115: validated below.
		case "max":
			cfg.Benchmark.MaxElementCount = uint32(*flagMax) //nolint:gosec // G115: validated below.
		case "runs":
			cfg.Benchmark.RunLimit = uint32(*flagRuns) //nolint:gosec // G115: validated below.
		case "limit":
			cfg.Benchmark.RunLimitType = *flagLimit
		case "pattern":
			cfg.Benchmark.Pattern = *flagPattern
		case "seed":
			cfg.Benchmark.Seed = *flagSeed
		case "strategies":
			cfg.Benchmark.Strategies = splitList(*flagStrats)
		case "workgroup":
			cfg.Benchmark.MaxWorkgroupSize = uint32(*flagWorkgroup) //nolint:gosec // G115: bounded by device limits.
		case "device":
			cfg.Device.Kind = config.DeviceKind(*flagDevice)
		case "subgroups":
			cfg.Device.Subgroups = *flagSubgroups
		case "workers":
			cfg.Device.Workers = *flagWorkers
		case "format":
			cfg.Output.Format = *flagFormat
		case "o":
			cfg.Output.Path = *flagOutput
		case "plot":
			cfg.Output.Plot = *flagPlot
		case "progress":
			cfg.Output.Progress = *flagProgress
		case "color":
			cfg.Output.Color = *flagColor
		}
	})
	return cfg, cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func list(w io.Writer, sess device.Session, cfg bench.Config) {
	caps := sess.Capabilities()
	_, _ = fmt.Fprintf(w, "Device:     %s [%s]\n", caps.Adapter, caps.Adapter.Backend)
	_, _ = fmt.Fprintf(w, "Limits:     workgroup %d, %s workgroups per axis, %s per buffer\n",
		caps.Limits.MaxWorkgroupSize, humanize.Comma(int64(caps.Limits.MaxDispatchPerAxis)),
		humanize.IBytes(caps.Limits.MaxBufferSize))
	_, _ = fmt.Fprintf(w, "Subgroups:  %v\n", caps.SubgroupReduction)
	_, _ = fmt.Fprintf(w, "Strategies: %s\n", strings.Join(reduce.Names(reduce.Registry()), ", "))
	_, _ = fmt.Fprintf(w, "Selected:   %s\n", strings.Join(reduce.Names(bench.Strategies(caps, cfg)), ", "))
}

// run benchmarks, then writes the report and the optional chart. An
// interrupted benchmark still reports the sizes that completed.
func run(sess device.Session, cfg config.Config) error {
	bc := cfg.Bench()
	caps := sess.Capabilities()
	strategies := reduce.Names(bench.Strategies(caps, bc))

	doc := report.NewDocument(caps.Adapter.String(), caps.Adapter.Backend, bc.Describe(), strategies)
	collector := report.NewCollector(doc)
	observers := []bench.Observer{collector}

	var progress *report.Progress
	if cfg.Output.Progress {
		progress = report.NewProgress(os.Stderr, len(bc.Sizes())*len(strategies))
		observers = append(observers, progress)
	}

	klog.Infof("reducebench %s: run %s on %s, %s", doc.RunID, bc.Describe(), doc.Adapter, strings.Join(strategies, ","))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	_, runErr := bench.Run(ctx, sess, bc, observers...)
	if progress != nil {
		progress.Finish()
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if runErr != nil {
		klog.Warningf("interrupted, reporting %d completed sizes", len(doc.Sizes))
	}

	if err := writeReport(collector.Document(), cfg.Output); err != nil {
		return err
	}
	if cfg.Output.Plot != "" {
		if err := report.Plot(collector.Document(), cfg.Output.Plot); err != nil {
			return err
		}
		klog.Infof("plot saved to %s", cfg.Output.Plot)
	}
	return runErr
}

func writeReport(doc *report.Document, out config.Output) (err error) {
	w := io.Writer(os.Stdout)
	if out.Path != "" {
		f, createErr := os.Create(out.Path)
		if createErr != nil {
			return errors.Wrap(createErr, "create report file")
		}
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = errors.Wrap(cerr, "close report file")
			}
		}()
		w = f
	}
	return report.Write(w, doc, report.Format(out.Format), report.ColorMode(out.Color))
}
