package reduce

import (
	"context"
	"time"

	"github.com/born-ml/reducebench/internal/device"
	"github.com/born-ml/reducebench/internal/dispatch"
	"github.com/born-ml/reducebench/internal/input"
)

// cpuStrategy folds the host array sequentially.
type cpuStrategy struct{}

func (cpuStrategy) Name() string            { return CPU.String() }
func (cpuStrategy) Kind() Kind              { return CPU }
func (cpuStrategy) RequiresSubgroups() bool { return false }

func (cpuStrategy) Plan(uint32, dispatch.Limits, Options) ([]dispatch.Plan, error) {
	return nil, nil
}

func (cpuStrategy) Setup(ctx context.Context, _ device.Session, in input.Array, _ Options) (Runner, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &cpuRunner{in: in}, nil
}

type cpuRunner struct {
	in input.Array
}

func (r *cpuRunner) Run(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()
	sum := r.in.Sum()
	return Result{Value: sum, ElapsedMs: elapsedMs(start)}, nil
}

func (r *cpuRunner) Plans() []dispatch.Plan { return nil }

func (r *cpuRunner) Release() {}
