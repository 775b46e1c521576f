package reduce

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/reducebench/internal/device"
	"github.com/born-ml/reducebench/internal/dispatch"
	"github.com/born-ml/reducebench/internal/input"
)

// recursiveStrategy reduces without atomics. Every pass writes one partial
// per workgroup; the partials are the next pass's input until a single value
// remains. Pass outputs alternate between two buffers sized for the first two
// passes.
type recursiveStrategy struct{}

func (recursiveStrategy) Name() string            { return Recursive.String() }
func (recursiveStrategy) Kind() Kind              { return Recursive }
func (recursiveStrategy) RequiresSubgroups() bool { return false }

func (recursiveStrategy) options(opts Options) dispatch.Options {
	return dispatch.Options{
		MaxWorkgroupSize:     workgroupCap(opts),
		MaxWorkgroupsPerTile: maxWorkgroupsPerTile,
	}
}

func (s recursiveStrategy) Plan(n uint32, limits dispatch.Limits, opts Options) ([]dispatch.Plan, error) {
	return dispatch.PlanPasses(n, limits, s.options(opts))
}

func (s recursiveStrategy) Setup(ctx context.Context, sess device.Session, in input.Array, opts Options) (Runner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	passes, err := s.Plan(in.Len(), sess.Capabilities().Limits.Dispatch(), opts)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: plan", s.Name())
	}
	for i, p := range passes {
		klog.V(1).Infof("%s: pass %d: %s", s.Name(), i, p)
	}

	r := &recursiveRunner{session: sess, passes: passes}
	if err := r.setup(in); err != nil {
		r.Release()
		return nil, errors.Wrapf(err, "%s: setup", s.Name())
	}
	return r, nil
}

type recursiveRunner struct {
	session device.Session
	passes  []dispatch.Plan
	res     device.Resources

	input     device.Buffer
	outputs   []device.Buffer // At most two, ping-ponged.
	staging   device.Buffer
	pipelines []device.Pipeline
}

func (r *recursiveRunner) setup(in input.Array) error {
	for _, p := range r.passes {
		pipe, err := r.session.Pipeline(device.KernelFor(device.KernelPartials, p))
		if err != nil {
			return err
		}
		r.pipelines = append(r.pipelines, pipe)
	}

	usage := device.UsageStorage | device.UsageCopyDst
	if len(r.passes) == 0 {
		// A single element is copied straight to staging.
		usage |= device.UsageCopySrc
	}
	b, err := r.session.CreateBufferInit("input", in.Bytes(), usage)
	if err != nil {
		return err
	}
	r.input = r.res.Add(b)

	for i, p := range r.passes[:min(2, len(r.passes))] {
		b, err := r.session.CreateBuffer(fmt.Sprintf("partials-%d", i), uint64(p.WorkgroupCount())*4,
			device.UsageStorage|device.UsageCopySrc)
		if err != nil {
			return err
		}
		r.outputs = append(r.outputs, r.res.Add(b))
	}

	if b, err = r.session.CreateBuffer("staging", 4, device.UsageMapRead|device.UsageCopyDst); err != nil {
		return err
	}
	r.staging = r.res.Add(b)
	return nil
}

// result returns the buffer holding the final sum.
func (r *recursiveRunner) result() device.Buffer {
	if len(r.passes) == 0 {
		return r.input
	}
	return r.outputs[(len(r.passes)-1)%2]
}

// Run records every pass into one command buffer. Pass k reads what pass k-1
// wrote; the device orders them, so the host waits only for the final read.
func (r *recursiveRunner) Run(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()

	enc := r.session.NewEncoder()
	src := r.input
	for k, p := range r.passes {
		dst := r.outputs[k%2]
		enc.Dispatch(r.pipelines[k], p.GridX, p.GridY, src, dst)
		src = dst
	}
	enc.CopyBufferToBuffer(r.result(), 0, r.staging, 0, 4)

	value, err := submitAndRead(ctx, r.session, enc, r.staging)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value, ElapsedMs: elapsedMs(start)}, nil
}

func (r *recursiveRunner) Plans() []dispatch.Plan { return r.passes }

func (r *recursiveRunner) Release() { r.res.Release() }
