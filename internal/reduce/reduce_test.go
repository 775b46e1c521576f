package reduce

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/reducebench/internal/backend/emulator"
	"github.com/born-ml/reducebench/internal/device"
	"github.com/born-ml/reducebench/internal/dispatch"
	"github.com/born-ml/reducebench/internal/input"
)

func newSession(t testing.TB, cfg emulator.Config) *emulator.Session {
	t.Helper()
	s, err := emulator.New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Release)
	return s
}

func runOnce(t *testing.T, sess device.Session, s Strategy, in input.Array) (Runner, Result) {
	t.Helper()
	r, err := s.Setup(context.Background(), sess, in, Options{})
	require.NoError(t, err, "%s setup", s.Name())
	t.Cleanup(r.Release)

	res, err := r.Run(context.Background())
	require.NoError(t, err, "%s run", s.Name())
	return r, res
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "subgroup-tile", SubgroupTile.String())
	assert.Equal(t, "Kind(12)", Kind(12).String())
}

func TestRegistry(t *testing.T) {
	names := Names(Registry())
	assert.Equal(t, []string{"cpu", "atomic", "tile", "vector", "recursive", "subgroup", "subgroup-tile"}, names)

	for i, s := range Registry() {
		assert.Equal(t, Kind(i), s.Kind())
		found, ok := Lookup(s.Name())
		require.True(t, ok)
		assert.Equal(t, s.Kind(), found.Kind())
	}

	_, ok := Lookup("webgl")
	assert.False(t, ok)
}

func TestAvailable(t *testing.T) {
	caps := device.Capabilities{Limits: device.DefaultLimits()}
	assert.Equal(t, []string{"cpu", "atomic", "tile", "vector", "recursive"}, Names(Available(caps)))

	caps.SubgroupReduction = true
	assert.Len(t, Available(caps), len(Registry()))
}

func TestAllOnes_EveryStrategy(t *testing.T) {
	sess := newSession(t, emulator.DefaultConfig())

	for _, s := range Registry() {
		t.Run(s.Name(), func(t *testing.T) {
			for exp := 2; exp <= 16; exp++ {
				n := uint32(1) << exp
				in, err := input.Generate(n, input.Ones, 0)
				require.NoError(t, err)

				_, res := runOnce(t, sess, s, in)
				assert.Equal(t, n, res.Value, "n=%d", n)
				assert.GreaterOrEqual(t, res.ElapsedMs, 0.0)
			}
		})
	}
}

func TestAllOnes_2To20(t *testing.T) {
	if testing.Short() {
		t.Skip("large input")
	}
	sess := newSession(t, emulator.DefaultConfig())
	in, err := input.Generate(1<<20, input.Ones, 0)
	require.NoError(t, err)

	for _, s := range Registry() {
		_, res := runOnce(t, sess, s, in)
		assert.Equal(t, uint32(1048576), res.Value, s.Name())
	}
}

func TestAtomic_SingleWorkgroup(t *testing.T) {
	sess := newSession(t, emulator.DefaultConfig())
	in, err := input.Generate(64, input.Ones, 0)
	require.NoError(t, err)

	s, ok := Lookup("atomic")
	require.True(t, ok)
	r, res := runOnce(t, sess, s, in)

	require.Len(t, r.Plans(), 1)
	p := r.Plans()[0]
	assert.Equal(t, uint32(64), p.WorkgroupSize)
	assert.Equal(t, uint32(1), p.GridX)
	assert.Equal(t, uint32(1), p.GridY)
	assert.Equal(t, uint32(64), res.Value)
}

func TestPlans_CoverInput(t *testing.T) {
	limits := dispatch.Limits{MaxWorkgroupSize: 256, MaxDispatchPerAxis: 1024}

	for _, s := range Registry() {
		if s.Kind() == CPU || s.Kind() == Recursive {
			continue
		}
		for exp := 2; exp <= 24; exp++ {
			n := uint32(1) << exp
			plans, err := s.Plan(n, limits, Options{})
			require.NoError(t, err, "%s n=%d", s.Name(), n)
			require.Len(t, plans, 1)
			p := plans[0]
			assert.Equal(t, uint64(n), p.Covered(), "%s %s", s.Name(), p)
			assert.LessOrEqual(t, p.GridX, limits.MaxDispatchPerAxis)
		}
	}
}

func TestRecursive_Passes(t *testing.T) {
	s, ok := Lookup("recursive")
	require.True(t, ok)

	passes, err := s.Plan(1<<24, dispatch.DefaultLimits(), Options{})
	require.NoError(t, err)
	require.Len(t, passes, 3)

	for k := 1; k < len(passes); k++ {
		assert.Less(t, passes[k].InputLength, passes[k-1].InputLength)
		assert.Equal(t, passes[k-1].WorkgroupCount(), passes[k].InputLength)
	}
	assert.Equal(t, uint32(1), passes[len(passes)-1].WorkgroupCount())
}

func TestRecursive_BufferSizing(t *testing.T) {
	sess := newSession(t, emulator.DefaultConfig())
	const n = 1 << 22
	in, err := input.Generate(n, input.Ones, 0)
	require.NoError(t, err)

	s, _ := Lookup("recursive")
	r, err := s.Setup(context.Background(), sess, in, Options{})
	require.NoError(t, err)

	passes := r.Plans()
	require.Len(t, passes, 2)
	// Input + two ping-pong buffers for the two largest pass outputs + staging.
	want := uint64(n)*4 + uint64(passes[0].WorkgroupCount()+passes[1].WorkgroupCount())*4 + 4
	stats := sess.MemoryStats()
	assert.Equal(t, want, stats.AllocatedBytes)
	assert.Equal(t, int64(4), stats.ActiveBuffers)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(n), res.Value)

	r.Release()
	assert.Equal(t, int64(0), sess.MemoryStats().ActiveBuffers)
	assert.Equal(t, uint64(0), sess.MemoryStats().AllocatedBytes)
}

func TestRecursive_SingleElement(t *testing.T) {
	sess := newSession(t, emulator.DefaultConfig())
	s, _ := Lookup("recursive")

	r, res := runOnce(t, sess, s, input.FromValues([]uint32{42}))
	assert.Empty(t, r.Plans())
	assert.Equal(t, uint32(42), res.Value)
}

func TestIdempotentRuns(t *testing.T) {
	sess := newSession(t, emulator.DefaultConfig())
	in, err := input.Generate(1<<14, input.Random, 3)
	require.NoError(t, err)

	for _, s := range Registry() {
		r, first := runOnce(t, sess, s, in)
		second, err := r.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, first.Value, second.Value, s.Name())
	}
}

func TestCrossStrategyAgreement(t *testing.T) {
	sess := newSession(t, emulator.DefaultConfig())

	for _, pattern := range []input.Pattern{input.Random, input.Sequence} {
		in, err := input.Generate(1<<18, pattern, 11)
		require.NoError(t, err)
		checksum := in.Checksum()

		oracle := in.Sum()
		for _, s := range Registry() {
			_, res := runOnce(t, sess, s, in)
			assert.Equal(t, oracle, res.Value, "%s %s", pattern, s.Name())
		}
		assert.Equal(t, checksum, in.Checksum(), "input mutated")
	}
}

func TestFoldedGrid(t *testing.T) {
	cfg := emulator.DefaultConfig()
	cfg.Limits.MaxDispatchPerAxis = 16
	sess := newSession(t, cfg)

	in, err := input.Generate(1<<14, input.Random, 5)
	require.NoError(t, err)

	for _, s := range Registry() {
		r, res := runOnce(t, sess, s, in)
		assert.Equal(t, in.Sum(), res.Value, s.Name())
		for _, p := range r.Plans() {
			assert.LessOrEqual(t, p.GridX, uint32(16))
		}
	}
}

func TestSetup_UnsupportedSize(t *testing.T) {
	sess := newSession(t, emulator.DefaultConfig())
	values := make([]uint32, 96)

	for _, s := range Registry() {
		if s.Kind() == CPU {
			continue
		}
		_, err := s.Setup(context.Background(), sess, input.FromValues(values), Options{})
		require.Error(t, err, s.Name())
		assert.True(t, errors.Is(err, dispatch.ErrUnsupportedSize), "%s: %v", s.Name(), err)
	}
	assert.Equal(t, int64(0), sess.MemoryStats().ActiveBuffers)
}

func TestSetup_AllocationFailure(t *testing.T) {
	cfg := emulator.DefaultConfig()
	cfg.Limits.MaxBufferSize = 1024
	sess := newSession(t, cfg)

	in, err := input.Generate(1<<10, input.Ones, 0) // 4 KiB
	require.NoError(t, err)

	for _, s := range Registry() {
		if s.Kind() == CPU {
			continue
		}
		_, err := s.Setup(context.Background(), sess, in, Options{})
		require.Error(t, err, s.Name())
		assert.True(t, errors.Is(err, device.ErrResourceAllocation), "%s: %v", s.Name(), err)
	}
	assert.Equal(t, int64(0), sess.MemoryStats().ActiveBuffers, "partial setups are released")
}

func TestSetup_SubgroupsUnavailable(t *testing.T) {
	cfg := emulator.DefaultConfig()
	cfg.SubgroupReduction = false
	sess := newSession(t, cfg)
	in, err := input.Generate(64, input.Ones, 0)
	require.NoError(t, err)

	s, _ := Lookup("subgroup")
	_, err = s.Setup(context.Background(), sess, in, Options{})
	assert.True(t, errors.Is(err, device.ErrResourceAllocation))
}

func TestSetup_WorkgroupOverride(t *testing.T) {
	sess := newSession(t, emulator.DefaultConfig())
	in, err := input.Generate(1<<12, input.Ones, 0)
	require.NoError(t, err)

	s, _ := Lookup("tile")
	r, err := s.Setup(context.Background(), sess, in, Options{MaxWorkgroupSize: 256})
	require.NoError(t, err)
	defer r.Release()

	assert.Equal(t, uint32(256), r.Plans()[0].WorkgroupSize)
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(1<<12), res.Value)
}

func TestRun_CanceledContext(t *testing.T) {
	sess := newSession(t, emulator.DefaultConfig())
	in, err := input.Generate(64, input.Ones, 0)
	require.NoError(t, err)

	for _, s := range Registry() {
		ctx, cancel := context.WithCancel(context.Background())
		r, err := s.Setup(ctx, sess, in, Options{})
		require.NoError(t, err)
		defer r.Release()

		cancel()
		_, err = r.Run(ctx)
		assert.True(t, errors.Is(err, context.Canceled), s.Name())
	}
}

func BenchmarkStrategies(b *testing.B) {
	sess := newSession(b, emulator.DefaultConfig())
	in, err := input.Generate(1<<18, input.Ones, 0)
	require.NoError(b, err)

	for _, s := range Registry() {
		b.Run(s.Name(), func(b *testing.B) {
			r, err := s.Setup(context.Background(), sess, in, Options{})
			require.NoError(b, err)
			defer r.Release()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := r.Run(context.Background()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
