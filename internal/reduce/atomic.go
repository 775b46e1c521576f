package reduce

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/reducebench/internal/device"
	"github.com/born-ml/reducebench/internal/dispatch"
	"github.com/born-ml/reducebench/internal/input"
)

// atomicStrategy is a single-pass reduction: every workgroup reduces its tile
// and adds one partial into a global accumulator. The variants differ only in
// kernel and tiling.
type atomicStrategy struct {
	kind         Kind
	kernel       device.KernelKind
	perTile      uint32
	vectorWidth  uint32
	useSubgroups bool
}

func (s *atomicStrategy) Name() string            { return s.kind.String() }
func (s *atomicStrategy) Kind() Kind              { return s.kind }
func (s *atomicStrategy) RequiresSubgroups() bool { return s.useSubgroups }

func (s *atomicStrategy) options(opts Options) dispatch.Options {
	return dispatch.Options{
		MaxWorkgroupSize:     workgroupCap(opts),
		MaxWorkgroupsPerTile: s.perTile,
		VectorWidth:          s.vectorWidth,
	}
}

func (s *atomicStrategy) Plan(n uint32, limits dispatch.Limits, opts Options) ([]dispatch.Plan, error) {
	p, err := dispatch.New(n, limits, s.options(opts))
	if err != nil {
		return nil, err
	}
	return []dispatch.Plan{p}, nil
}

func (s *atomicStrategy) Setup(ctx context.Context, sess device.Session, in input.Array, opts Options) (Runner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	caps := sess.Capabilities()
	if s.useSubgroups && !caps.SubgroupReduction {
		return nil, device.PipelineAllocationError(device.Kernel{Kind: s.kernel}, errors.New("subgroups unavailable"))
	}

	plan, err := dispatch.New(in.Len(), caps.Limits.Dispatch(), s.options(opts))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: plan", s.Name())
	}
	klog.V(1).Infof("%s: plan %s", s.Name(), plan)

	r := &atomicRunner{plan: plan}
	if err := r.setup(sess, s.kernel, in); err != nil {
		r.Release()
		return nil, errors.Wrapf(err, "%s: setup", s.Name())
	}
	return r, nil
}

type atomicRunner struct {
	session device.Session
	plan    dispatch.Plan
	res     device.Resources

	input, accumulator, staging device.Buffer
	clear, sum                  device.Pipeline
}

func (r *atomicRunner) setup(sess device.Session, kernel device.KernelKind, in input.Array) error {
	r.session = sess

	var err error
	if r.clear, err = sess.Pipeline(device.ClearKernel()); err != nil {
		return err
	}
	if r.sum, err = sess.Pipeline(device.KernelFor(kernel, r.plan)); err != nil {
		return err
	}

	b, err := sess.CreateBufferInit("input", in.Bytes(), device.UsageStorage|device.UsageCopyDst)
	if err != nil {
		return err
	}
	r.input = r.res.Add(b)
	if b, err = sess.CreateBuffer("accumulator", 4, device.UsageStorage|device.UsageCopySrc); err != nil {
		return err
	}
	r.accumulator = r.res.Add(b)
	if b, err = sess.CreateBuffer("staging", 4, device.UsageMapRead|device.UsageCopyDst); err != nil {
		return err
	}
	r.staging = r.res.Add(b)
	return nil
}

// Run records clear, sum and copy-to-staging into one command buffer and
// waits for the staging read.
func (r *atomicRunner) Run(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()

	enc := r.session.NewEncoder()
	enc.Dispatch(r.clear, 1, 1, r.accumulator)
	enc.Dispatch(r.sum, r.plan.GridX, r.plan.GridY, r.input, r.accumulator)
	enc.CopyBufferToBuffer(r.accumulator, 0, r.staging, 0, 4)

	value, err := submitAndRead(ctx, r.session, enc, r.staging)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value, ElapsedMs: elapsedMs(start)}, nil
}

func (r *atomicRunner) Plans() []dispatch.Plan { return []dispatch.Plan{r.plan} }

func (r *atomicRunner) Release() { r.res.Release() }

func submitAndRead(ctx context.Context, sess device.Session, enc device.Encoder, staging device.Buffer) (uint32, error) {
	cmd, err := enc.Finish()
	if err != nil {
		return 0, errors.Wrap(err, "encode")
	}
	if err := sess.Submit(cmd); err != nil {
		return 0, errors.Wrap(err, "submit")
	}
	value, err := sess.ReadUint32(ctx, staging)
	if err != nil {
		return 0, errors.Wrap(err, "read result")
	}
	return value, nil
}

func workgroupCap(opts Options) uint32 {
	if opts.MaxWorkgroupSize > 0 {
		return opts.MaxWorkgroupSize
	}
	return preferredWorkgroupSize
}
