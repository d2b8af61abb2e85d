package sim

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enginesim/internal/compiler"
	"github.com/roach88/enginesim/internal/config"
	"github.com/roach88/enginesim/internal/engine"
	"github.com/roach88/enginesim/internal/ir"
	"github.com/roach88/enginesim/internal/testutil"
)

func newTestRegistry(opts ...RegistryOption) *Registry {
	base := []RegistryOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithLoader(compiler.NewCUELoader()),
	}
	return NewRegistry(append(base, opts...)...)
}

func scenarioConfig() config.EngineConfig {
	cfg := config.Default()
	cfg.SampleRate = 48000
	cfg.SimulationFrequency = 10000
	cfg.FluidSimulationSteps = 8
	return cfg
}

func TestScenario(t *testing.T) {
	r := newTestRegistry()

	h, err := r.Create(scenarioConfig())
	require.NoError(t, err)
	require.NoError(t, r.SetThrottle(h, 0.5))
	require.NoError(t, r.Advance(h, 0.01667))

	stats, err := r.Stats(h)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.RPM, 0.0)
	assert.GreaterOrEqual(t, stats.ExhaustFlow, 0.0)

	out := make([]float32, 128*2)
	n, err := r.Render(h, out, 128)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 0)
	assert.LessOrEqual(t, n, 128)
	for _, v := range out {
		require.False(t, math.IsNaN(float64(v)))
		require.LessOrEqual(t, math.Abs(float64(v)), scenarioConfig().Volume)
	}

	require.NoError(t, r.Destroy(h))
	err = r.Destroy(h)
	require.Error(t, err)
	assert.True(t, IsInvalidHandle(err))
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestScenarioWithTopology(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Create(scenarioConfig())
	require.NoError(t, err)

	require.NoError(t, r.LoadTopology(h, testutil.Inline4Script))
	require.NoError(t, r.SetThrottle(h, 0.5))

	out := make([]float32, 800*2)
	var rendered int
	for i := 0; i < 30; i++ {
		require.NoError(t, r.Advance(h, 1.0/60))
		n, err := r.Render(h, out, 800)
		require.NoError(t, err)
		rendered += n
		for _, v := range out {
			require.False(t, math.IsNaN(float64(v)))
			require.LessOrEqual(t, math.Abs(float64(v)), 1.0)
		}
	}

	stats, err := r.Stats(h)
	require.NoError(t, err)
	assert.Greater(t, stats.RPM, 0.0)
	assert.Equal(t, 1, stats.ActiveChannels)
	assert.Greater(t, rendered, 0)
	assert.Equal(t, int64(30), stats.Version)
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(config.Default()))

	cfg := config.Default()
	cfg.SampleRate = 0
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))

	var fe *config.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "sample_rate", fe.Field)
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	r := newTestRegistry()
	cfg := config.Default()
	cfg.Volume = math.NaN()

	h, err := r.Create(cfg)
	assert.Zero(t, h)
	assert.True(t, IsInvalidArgument(err))
	assert.Contains(t, r.LastError(0), "volume")
	assert.Zero(t, r.Len())
}

func TestCreateValidConfigsSucceed(t *testing.T) {
	r := newTestRegistry()

	configs := []func(*config.EngineConfig){
		func(c *config.EngineConfig) {},
		func(c *config.EngineConfig) { c.Channels = 1 },
		func(c *config.EngineConfig) { c.Channels = config.MaxChannels },
		func(c *config.EngineConfig) { c.InputBufferSize = 1000; c.AudioBufferSize = 3000 },
		func(c *config.EngineConfig) { c.SampleRate = 8000; c.SimulationFrequency = 1000 },
		func(c *config.EngineConfig) { c.MaxSubStepsPerAdvance = 1 },
	}
	for i, mutate := range configs {
		cfg := config.Default()
		mutate(&cfg)
		require.NoError(t, config.Validate(cfg), "config %d", i)

		h, err := r.Create(cfg)
		require.NoError(t, err, "config %d", i)
		assert.NotZero(t, h)
	}
	assert.Equal(t, len(configs), r.Len())
}

func TestCreateStartsInCreatedState(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Create(config.Default())
	require.NoError(t, err)

	state, err := r.StateOf(h)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, state)

	topo, err := r.TopologyOf(h)
	require.NoError(t, err)
	assert.True(t, topo.IsEmpty())
}

func TestCreatedStateAdvancesSilently(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Create(config.Default())
	require.NoError(t, err)

	require.NoError(t, r.SetThrottle(h, 1))
	out := make([]float32, 256*2)
	for i := 0; i < 10; i++ {
		require.NoError(t, r.Advance(h, 1.0/60))
		_, err := r.Render(h, out, 256)
		require.NoError(t, err)
		for _, v := range out {
			require.Zero(t, v)
		}
	}

	stats, err := r.Stats(h)
	require.NoError(t, err)
	assert.Zero(t, stats.RPM)
	assert.Zero(t, stats.ActiveChannels)
}

func TestStatsNotYetAvailable(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Create(config.Default())
	require.NoError(t, err)

	_, err = r.Stats(h)
	assert.True(t, IsNotYetAvailable(err))
	assert.ErrorIs(t, err, ErrNotYetAvailable)
	assert.Contains(t, r.LastError(h), string(CodeNotYetAvailable))
}

func TestStatsIdempotent(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Create(config.Default())
	require.NoError(t, err)
	require.NoError(t, r.LoadTopology(h, testutil.Inline4Script))
	require.NoError(t, r.Advance(h, 1.0/60))

	a, err := r.Stats(h)
	require.NoError(t, err)
	_, err = r.Render(h, make([]float32, 64*2), 64)
	require.NoError(t, err)
	b, err := r.Stats(h)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAdvanceRejectsInvalidDT(t *testing.T) {
	r := newTestRegistry()
	setup := func() Handle {
		h, err := r.Create(config.Default())
		require.NoError(t, err)
		require.NoError(t, r.LoadTopology(h, testutil.Inline4Script))
		require.NoError(t, r.SetThrottle(h, 0.5))
		require.NoError(t, r.Advance(h, 0.05))
		return h
	}
	control := setup()
	h := setup()

	for _, dt := range []float64{-0.01, math.NaN(), math.Inf(1)} {
		err := r.Advance(h, dt)
		assert.True(t, IsInvalidArgument(err), "dt=%v", dt)
	}
	assert.Contains(t, r.LastError(h), "INVALID_TIMESTEP")

	// A zero step publishes the engine state as it stands.
	require.NoError(t, r.Advance(control, 0))
	require.NoError(t, r.Advance(h, 0))

	want, err := r.Stats(control)
	require.NoError(t, err)
	got, err := r.Stats(h)
	require.NoError(t, err)
	assert.Equal(t, want.Version, got.Version)
	assert.Equal(t, want.SubSteps, got.SubSteps)
	assert.Equal(t, want.SimulatedTime, got.SimulatedTime)
	assert.Equal(t, want.RPM, got.RPM)
	assert.Equal(t, want.ManifoldPressure, got.ManifoldPressure)
	assert.Equal(t, want.BufferedFrames, got.BufferedFrames)
}

func TestSetThrottleOutOfRange(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Create(config.Default())
	require.NoError(t, err)

	for _, v := range []float64{-0.1, 1.5, math.NaN()} {
		assert.True(t, IsInvalidArgument(r.SetThrottle(h, v)))
	}
	assert.NoError(t, r.SetThrottle(h, 0))
	assert.NoError(t, r.SetThrottle(h, 1))
}

func TestRenderNeverExceedsRequest(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Create(config.Default())
	require.NoError(t, err)
	require.NoError(t, r.LoadTopology(h, testutil.Inline4Script))
	require.NoError(t, r.SetThrottle(h, 0.5))
	require.NoError(t, r.Advance(h, 0.1))

	for _, requested := range []int{0, 1, 17, 128, 4096, 100000} {
		out := make([]float32, (requested+8)*2)
		sentinel := float32(42)
		for i := range out {
			out[i] = sentinel
		}
		n, err := r.Render(h, out, requested)
		require.NoError(t, err)
		assert.LessOrEqual(t, n, requested)
		for _, v := range out[requested*2:] {
			require.Equal(t, sentinel, v, "requested=%d", requested)
		}
	}
}

func TestRenderUnderrunIsCounted(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Create(config.Default())
	require.NoError(t, err)

	n, err := r.Render(h, make([]float32, 64*2), 64)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, r.Advance(h, 0))
	stats, err := r.Stats(h)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Underruns)
}

func TestProcessingTime(t *testing.T) {
	clock := testutil.NewFakeClock(2 * time.Millisecond)
	r := newTestRegistry(WithNow(clock.Now))
	h, err := r.Create(config.Default())
	require.NoError(t, err)

	_, err = r.Render(h, make([]float32, 64*2), 64)
	require.NoError(t, err)
	require.NoError(t, r.Advance(h, 0.01))

	stats, err := r.Stats(h)
	require.NoError(t, err)
	assert.Equal(t, 2.0, stats.ProcessingTimeMs)
	assert.Equal(t, 2, clock.Reads())
}

func TestDestroyedHandleRejectsEverything(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Create(config.Default())
	require.NoError(t, err)
	require.NoError(t, r.Destroy(h))

	ops := map[string]func() error{
		"LoadTopology": func() error { return r.LoadTopology(h, testutil.Inline4Script) },
		"SetThrottle":  func() error { return r.SetThrottle(h, 0.5) },
		"SetIgnition":  func() error { return r.SetIgnition(h, true) },
		"SetStarter":   func() error { return r.SetStarter(h, true) },
		"Advance":      func() error { return r.Advance(h, 0.01) },
		"Render": func() error {
			_, err := r.Render(h, make([]float32, 8), 4)
			return err
		},
		"Stats": func() error {
			_, err := r.Stats(h)
			return err
		},
		"StateOf": func() error {
			_, err := r.StateOf(h)
			return err
		},
		"TopologyOf": func() error {
			_, err := r.TopologyOf(h)
			return err
		},
		"Destroy": func() error { return r.Destroy(h) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			assert.True(t, IsInvalidHandle(err))
		})
	}
	assert.Contains(t, r.LastError(h), string(CodeInvalidHandle))
}

func TestStaleHandleAfterSlotReuse(t *testing.T) {
	r := newTestRegistry()
	old, err := r.Create(config.Default())
	require.NoError(t, err)
	require.NoError(t, r.Destroy(old))

	fresh, err := r.Create(config.Default())
	require.NoError(t, err)
	assert.Equal(t, old.slot(), fresh.slot(), "slot is reused")
	assert.NotEqual(t, old, fresh)

	assert.True(t, IsInvalidHandle(r.Advance(old, 0.01)))
	assert.True(t, IsInvalidHandle(r.Destroy(old)))
	assert.NoError(t, r.Advance(fresh, 0.01))
}

func TestUnknownHandles(t *testing.T) {
	r := newTestRegistry()
	for _, h := range []Handle{0, 1, makeHandle(0, 1), makeHandle(99, 1), Handle(math.MaxUint64)} {
		assert.True(t, IsInvalidHandle(r.Advance(h, 0.01)), "handle %s", h)
	}
}

func TestMaxHandles(t *testing.T) {
	built := 0
	countBuilds := func(*engine.Engine) { built++ }
	r := newTestRegistry(WithMaxHandles(2), WithEngineOptions(countBuilds))
	a, err := r.Create(config.Default())
	require.NoError(t, err)
	_, err = r.Create(config.Default())
	require.NoError(t, err)
	require.Equal(t, 2, built)

	_, err = r.Create(config.Default())
	assert.ErrorIs(t, err, ErrResourceExhausted)
	assert.Equal(t, 2, built, "a full table rejects before building a simulator")
	assert.Equal(t, 2, r.Len())

	require.NoError(t, r.Destroy(a))
	_, err = r.Create(config.Default())
	assert.NoError(t, err)
	assert.Equal(t, 3, built)
}

func TestLoadTopologyTransitionsToReady(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Create(config.Default())
	require.NoError(t, err)

	require.NoError(t, r.LoadTopology(h, testutil.Inline4Script))
	state, err := r.StateOf(h)
	require.NoError(t, err)
	assert.Equal(t, StateReady, state)

	topo, err := r.TopologyOf(h)
	require.NoError(t, err)
	assert.Equal(t, "inline-4", topo.Name)
}

func TestFailedLoadKeepsPreviousTopology(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Create(config.Default())
	require.NoError(t, err)
	require.NoError(t, r.LoadTopology(h, testutil.Inline4Script))
	require.NoError(t, r.SetThrottle(h, 0.4))
	require.NoError(t, r.Advance(h, 0.1))
	before, err := r.Stats(h)
	require.NoError(t, err)

	err = r.LoadTopology(h, "engine: {name: ")
	require.Error(t, err)
	assert.True(t, IsParseFailure(err))
	var ce *compiler.CompileError
	assert.True(t, errors.As(err, &ce), "cause is preserved")

	err = r.LoadTopology(h, `engine: {name: "x", cylinders: [{bore: 80, stroke: 80, compression_ratio: 99}]}`)
	assert.True(t, IsParseFailure(err))

	topo, err := r.TopologyOf(h)
	require.NoError(t, err)
	assert.Equal(t, "inline-4", topo.Name)

	state, err := r.StateOf(h)
	require.NoError(t, err)
	assert.Equal(t, StateReady, state)

	after, err := r.Stats(h)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Contains(t, r.LastError(h), string(CodeParseFailure))
}

func TestFailedLoadInCreatedStateStaysCreated(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Create(config.Default())
	require.NoError(t, err)

	assert.True(t, IsParseFailure(r.LoadTopology(h, "not cue {")))
	state, err := r.StateOf(h)
	require.NoError(t, err)
	assert.Equal(t, StateCreated, state)
}

func TestReloadKeepsTimelineAndThrottle(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Create(config.Default())
	require.NoError(t, err)
	require.NoError(t, r.LoadTopology(h, testutil.Inline4Script))
	require.NoError(t, r.SetThrottle(h, 0.7))
	require.NoError(t, r.Advance(h, 0.1))
	before, err := r.Stats(h)
	require.NoError(t, err)

	require.NoError(t, r.LoadTopology(h, testutil.TwinScript))
	require.NoError(t, r.Advance(h, 0.1))
	after, err := r.Stats(h)
	require.NoError(t, err)

	assert.Greater(t, after.SubSteps, before.SubSteps)
	assert.InDelta(t, 0.2, after.SimulatedTime, 1e-3)
	assert.Equal(t, 0.7, after.Throttle)
	assert.Equal(t, 2, after.ActiveChannels)
}

func TestNoLoaderConfigured(t *testing.T) {
	r := NewRegistry(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	h, err := r.Create(config.Default())
	require.NoError(t, err)
	assert.True(t, IsParseFailure(r.LoadTopology(h, testutil.Inline4Script)))
}

func TestLoaderFunc(t *testing.T) {
	calls := 0
	r := newTestRegistry(WithLoader(LoaderFunc(func(source string) (*ir.Topology, error) {
		calls++
		return testutil.Inline4Topology(), nil
	})))
	h, err := r.Create(config.Default())
	require.NoError(t, err)

	require.NoError(t, r.LoadTopology(h, "anything"))
	assert.Equal(t, 1, calls)
	s, err := r.Simulator(h)
	require.NoError(t, err)
	assert.Equal(t, ir.SourceHash("anything"), s.SourceHash())
}

func TestHandlesAreIndependent(t *testing.T) {
	r := newTestRegistry()
	a, err := r.Create(config.Default())
	require.NoError(t, err)
	b, err := r.Create(config.Default())
	require.NoError(t, err)

	require.NoError(t, r.LoadTopology(a, testutil.Inline4Script))
	require.NoError(t, r.SetThrottle(a, 1))
	require.NoError(t, r.Advance(a, 0.2))
	require.NoError(t, r.Advance(b, 0.01))

	sa, err := r.Stats(a)
	require.NoError(t, err)
	sb, err := r.Stats(b)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sa.Throttle)
	assert.Zero(t, sb.Throttle)
	assert.Zero(t, sb.RPM)
	assert.Greater(t, sa.SubSteps, sb.SubSteps)

	require.NoError(t, r.Destroy(b))
	assert.NoError(t, r.Advance(a, 0.01))
}

func TestLongRunIsDeterministic(t *testing.T) {
	if testing.Short() {
		t.Skip("simulates twenty seconds twice")
	}
	run := func() ir.StatsSnapshot {
		r := newTestRegistry()
		h, err := r.Create(testutil.FastConfig())
		require.NoError(t, err)
		require.NoError(t, r.LoadTopology(h, testutil.Inline4Script))
		require.NoError(t, r.SetThrottle(h, 0.5))

		out := make([]float32, 1024*2)
		for i := 0; i < 1200; i++ {
			require.NoError(t, r.Advance(h, 1.0/60))
			_, err := r.Render(h, out, 800)
			require.NoError(t, err)
		}
		s, err := r.Stats(h)
		require.NoError(t, err)
		return s
	}

	a := run()
	b := run()
	a.ProcessingTimeMs, b.ProcessingTimeMs = 0, 0
	assert.Equal(t, a, b)
	assert.False(t, math.IsNaN(a.RPM))
	assert.Greater(t, a.RPM, 0.0)
	assert.Less(t, a.RPM, 30000.0)
}

func TestConstantThrottleConvergesRPM(t *testing.T) {
	if testing.Short() {
		t.Skip("simulates 10000 advances")
	}
	const (
		advances = 10000
		window   = 1000
	)
	r := newTestRegistry()
	h, err := r.Create(config.Default())
	require.NoError(t, err)
	require.NoError(t, r.LoadTopology(h, testutil.Inline4Script))
	require.NoError(t, r.SetThrottle(h, 0.5))

	out := make([]float32, 1024*2)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < advances; i++ {
		require.NoError(t, r.Advance(h, 1.0/60))
		_, err := r.Render(h, out, 800)
		require.NoError(t, err)
		if i < advances-window {
			continue
		}
		s, err := r.Stats(h)
		require.NoError(t, err)
		require.False(t, math.IsNaN(s.RPM), "advance %d", i)
		lo = math.Min(lo, s.RPM)
		hi = math.Max(hi, s.RPM)
	}

	// Settled well inside the envelope: idle is far below, the rev limit
	// and the omega cap far above.
	assert.Greater(t, lo, 2000.0)
	assert.Less(t, hi, 6500.0)
	assert.Less(t, hi-lo, 0.05*lo, "rpm band over the last %d advances: [%.1f, %.1f]", window, lo, hi)
}

func TestVersion(t *testing.T) {
	assert.Equal(t, ir.VersionString(), Version())
	assert.Contains(t, Version(), "enginesim")
}

func TestErrorFormat(t *testing.T) {
	err := newError(CodeParseFailure, "LoadTopology", "script did not compile", errors.New("boom"))
	assert.Equal(t, "LoadTopology: PARSE_FAILURE: script did not compile: boom", err.Error())
	assert.ErrorIs(t, err, ErrParseFailure)
	assert.NotErrorIs(t, err, ErrInvalidHandle)
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "destroyed", StateDestroyed.String())
	assert.Equal(t, "unknown", State(0).String())
}
