package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/enginesim/internal/compiler"
	"github.com/roach88/enginesim/internal/engine"
	"github.com/roach88/enginesim/internal/ir"
	"github.com/roach88/enginesim/internal/sim"
	"github.com/roach88/enginesim/internal/store"
	"github.com/roach88/enginesim/internal/testutil"
)

// Harness executes one scenario against a real simulator.
//
// Every step goes through a store.Recorder backed by an in-memory SQLite
// database, so after the steps run the session is replayed into a fresh
// simulator and each recorded snapshot must be reproduced exactly.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	registry *sim.Registry
	sim      *sim.Simulator
	rec      *store.Recorder
	clock    *engine.Clock
	logger   *slog.Logger
	out      []float32
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger passed to the simulator registry.
// Scenarios run silently by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database and a fresh registry.
//
// Execution flow:
// 1. Create the simulator from the scenario config
// 2. Execute steps, recording each accepted input
// 3. Evaluate trace assertions
// 4. Replay the recorded session and compare snapshots
//
// Step failures and unmet expectations are reported in the Result. The
// returned error is for failures of the harness itself.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	ctx := context.Background()

	st, err := store.Open(store.InMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	reg := sim.NewRegistry(
		sim.WithLogger(o.logger),
		sim.WithLoader(compiler.NewCUELoader()),
	)
	handle, err := reg.Create(scenario.EngineConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create simulator: %w", err)
	}
	defer reg.Destroy(handle)
	s, err := reg.Simulator(handle)
	if err != nil {
		return nil, err
	}

	rec, err := store.NewRecorder(ctx, st, s,
		testutil.NewFixedIDGenerator("scenario-"+scenario.Name),
		store.WithSnapshotEvery(1),
	)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		scenario: scenario,
		store:    st,
		registry: reg,
		sim:      s,
		rec:      rec,
		clock:    engine.NewClock(),
		logger:   o.logger,
	}

	result := NewResult()
	result.SessionID = rec.SessionID()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	if err := rec.Close(ctx); err != nil {
		return nil, err
	}
	if final, err := s.Stats(); err == nil {
		result.Final = final
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	if err := h.verifyReplay(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// execute runs one step and appends its trace event.
func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) error {
	seq := h.clock.Next()
	op := step.Op()

	var (
		arg     string
		stepErr error
		outcome string
	)
	switch op {
	case OpLoad:
		arg = "inline"
		source := *step.Load
		if source == "script" {
			arg = "script"
			source = h.scenario.Source()
		}
		stepErr = h.rec.LoadTopology(ctx, source)
		if stepErr == nil {
			arg = h.sim.Topology().Name
		}
	case OpThrottle:
		arg = formatFloat(*step.Throttle)
		stepErr = h.rec.SetThrottle(ctx, *step.Throttle)
	case OpIgnition:
		arg = strconv.FormatBool(*step.Ignition)
		stepErr = h.rec.SetIgnition(ctx, *step.Ignition)
	case OpStarter:
		arg = strconv.FormatBool(*step.Starter)
		stepErr = h.rec.SetStarter(ctx, *step.Starter)
	case OpAdvance:
		n := max(step.Repeat, 1)
		arg = formatFloat(*step.Advance)
		if n > 1 {
			arg += "x" + strconv.Itoa(n)
		}
		for i := 0; i < n && stepErr == nil; i++ {
			stepErr = h.rec.Advance(ctx, *step.Advance)
		}
	case OpRender:
		frames := *step.Render
		arg = strconv.Itoa(frames)
		need := max(frames, 0) * h.sim.Config().OutputChannels()
		if cap(h.out) < need {
			h.out = make([]float32, need)
		}
		_, stepErr = h.rec.Render(ctx, h.out[:need], frames)
	case OpExpect:
		arg, outcome, stepErr = h.expect(index, step, result)
	}

	if stepErr != nil {
		code := sim.CodeOf(stepErr)
		if code == "" {
			return stepErr
		}
		outcome = string(code)
	} else if outcome == "" {
		outcome = OutcomeOK
	}
	result.AddTrace(seq, op, arg, outcome)

	switch {
	case step.Error != "" && outcome != step.Error:
		result.AddError(fmt.Sprintf("steps[%d] %s %s: expected error %s, got %s", index, op, arg, step.Error, outcome))
	case step.Error == "" && stepErr != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s %s: %v", index, op, arg, stepErr))
	}

	h.logger.Debug("scenario step",
		"scenario", h.scenario.Name,
		"step", index,
		"op", op,
		"arg", arg,
		"outcome", outcome,
	)
	return nil
}

// expect checks the latest stats against the step's ranges. Fields are
// checked in name order so failures are reported deterministically.
func (h *Harness) expect(index int, step Step, result *Result) (arg, outcome string, err error) {
	fields := make([]string, 0, len(step.Expect))
	for name := range step.Expect {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	arg = strings.Join(fields, ",")

	stats, err := h.sim.Stats()
	if err != nil {
		return arg, "", err
	}

	outcome = OutcomePass
	for _, name := range fields {
		want := step.Expect[name]
		got, _ := statsField(stats, name)
		if !want.Contains(got) {
			outcome = OutcomeFail
			result.AddError(fmt.Sprintf("steps[%d] expect %s: got %g, want %s", index, name, got, want))
		}
	}
	return arg, outcome, nil
}

// verifyReplay replays the recorded session and reports the first
// snapshot that differs.
func (h *Harness) verifyReplay(ctx context.Context, result *Result) error {
	replay, err := store.Replay(ctx, h.store, h.registry, h.rec.SessionID())
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if !replay.OK() {
		m := replay.Mismatch
		result.AddError(fmt.Sprintf("replay diverged at seq %d: got %s, want %s", m.Seq, describe(m.Got), describe(m.Want)))
	}
	return nil
}

func describe(s ir.StatsSnapshot) string {
	return fmt.Sprintf("rpm=%g substeps=%d version=%d", s.RPM, s.SubSteps, s.Version)
}

// formatFloat prints v in the shortest form that round-trips.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
