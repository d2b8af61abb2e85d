package engine

import (
	"cmp"
	"log/slog"
	"math"
	"slices"

	"github.com/roach88/enginesim/internal/acoustic"
	"github.com/roach88/enginesim/internal/config"
	"github.com/roach88/enginesim/internal/crank"
	"github.com/roach88/enginesim/internal/fluid"
	"github.com/roach88/enginesim/internal/ir"
)

// revLimitHysteresis is the fraction of the rev limit the crank must fall
// below before the limiter restores ignition.
const revLimitHysteresis = 0.97

// Engine is the simulation state of one engine: crank, manifold, cylinders
// and the accumulator that turns wall time into sub-steps.
//
// Thread-safety model:
//   - every method must be called from the single writer goroutine
//   - the Clock may be read from any goroutine
//
// INVARIANTS:
//   - cylinders are stepped in firing order, fixed at construction
//   - rejected calls leave all state untouched
//   - Advance allocates nothing after construction
type Engine struct {
	topo       *ir.Topology
	channels   acoustic.ChannelTopology
	shaft      crank.Crankshaft
	load       crank.LoadModel
	starter    crank.Starter
	manifold   *fluid.Manifold
	cylinders  []*fluid.Cylinder
	order      []int // cylinder indices sorted by firing offset
	clock      *Clock
	budget     StepBudget
	logger     *slog.Logger
	fluidSteps int
	frequency  float64

	state    crank.State
	throttle float64
	ignition bool
	revLimit float64
	limiting bool

	acc           float64
	pendingDraw   float64
	exhaustFlow   float64
	instabilities int64
	droppedTime   float64

	// Per-Advance scratch, sized for the sub-step cap.
	events   []ir.AcousticEvent
	raw      []float32
	envelope []float32
	ampSum   []float64
	specSum  []float64
}

// Frame is the acoustic output of one Advance call at the simulation rate.
// Its slices alias engine memory and are valid until the next Advance.
type Frame struct {
	Samples  []float32 // Steps frames interleaved by channel
	Envelope []float32 // total exhaust amplitude per sub-step
	Steps    int
	Dropped  float64 // simulated seconds dropped by the sub-step cap
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxSubSteps overrides the per-Advance sub-step cap from the config.
// Use a small cap in tests to exercise the stall path.
func WithMaxSubSteps(n int) EngineOption {
	return func(e *Engine) {
		e.budget = NewStepBudget(int(e.frequency), n)
	}
}

// WithLogger sets the logger used for instability warnings.
// Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithLoad replaces the topology's drag curve with an external load model.
func WithLoad(m crank.LoadModel) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.load = m
		}
	}
}

// New creates an Engine for topo at rest, with the throttle closed and
// ignition on. The topology is cloned so callers cannot alias it.
//
// cfg must already have passed config.Validate.
func New(cfg config.EngineConfig, topo *ir.Topology, opts ...EngineOption) *Engine {
	return NewWithClock(cfg, topo, NewClock(), opts...)
}

// NewWithClock creates an Engine that continues an existing timeline.
// Used when a topology reload keeps simulated time running.
func NewWithClock(cfg config.EngineConfig, topo *ir.Topology, clock *Clock, opts ...EngineOption) *Engine {
	if topo == nil {
		topo = ir.EmptyTopology()
	}
	topo = topo.Clone()

	e := &Engine{
		topo:       topo,
		channels:   acoustic.NewChannelTopology(topo, cfg.OutputChannels()),
		shaft:      crank.Crankshaft{Inertia: topo.Crankshaft.Inertia, Friction: topo.Crankshaft.FrictionTorque, Viscous: topo.Crankshaft.ViscousFriction},
		load:       crank.NewDragCurve(topo.Load),
		starter:    crank.NewStarter(topo.Starter),
		manifold:   fluid.NewManifold(topo.Intake),
		clock:      clock,
		budget:     NewStepBudget(cfg.SimulationFrequency, cfg.SubStepCap()),
		logger:     slog.Default(),
		fluidSteps: max(cfg.FluidSimulationSteps, 1),
		frequency:  float64(cfg.SimulationFrequency),
		ignition:   true,
		revLimit:   topo.Ignition.RevLimit,
	}

	e.cylinders = make([]*fluid.Cylinder, len(topo.Cylinders))
	e.order = make([]int, len(topo.Cylinders))
	for i, spec := range topo.Cylinders {
		e.cylinders[i] = fluid.NewCylinder(spec, topo.Ignition, e.state.Angle)
		e.order[i] = i
	}
	slices.SortStableFunc(e.order, func(a, b int) int {
		return cmp.Compare(topo.Cylinders[a].FiringOffset, topo.Cylinders[b].FiringOffset)
	})

	for _, opt := range opts {
		opt(e)
	}

	n := e.budget.MaxSteps()
	e.events = make([]ir.AcousticEvent, 0, n*len(e.cylinders))
	e.raw = make([]float32, n*e.channels.Channels())
	e.envelope = make([]float32, n)
	e.ampSum = make([]float64, len(e.cylinders))
	e.specSum = make([]float64, len(e.cylinders))
	return e
}

// Topology returns the engine's topology. Callers must not modify it.
func (e *Engine) Topology() *ir.Topology { return e.topo }

// Channels returns the output channel routing.
func (e *Engine) Channels() acoustic.ChannelTopology { return e.channels }

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock { return e.clock }

// MaxSubSteps returns the per-Advance sub-step cap.
func (e *Engine) MaxSubSteps() int { return e.budget.MaxSteps() }

// SetThrottle sets the throttle position. Values outside [0,1] and
// non-finite values are rejected.
func (e *Engine) SetThrottle(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return &RuntimeError{Code: ErrCodeThrottleRange, Message: "throttle must be within [0,1]", Value: v}
	}
	e.throttle = v
	return nil
}

// Throttle returns the current throttle position.
func (e *Engine) Throttle() float64 { return e.throttle }

// SetIgnition switches the ignition on or off.
func (e *Engine) SetIgnition(on bool) { e.ignition = on }

// SetStarter engages or releases the starter motor.
func (e *Engine) SetStarter(on bool) { e.starter.Engaged = on }

// State returns the crank state.
func (e *Engine) State() crank.State { return e.state }

// Advance runs the simulation forward by dt seconds of wall time.
//
// dt must be finite and non-negative; anything else is rejected with a
// RuntimeError before any state changes. A zero dt, or one too short to buy
// a whole sub-step, only grows the accumulator and returns an empty Frame.
func (e *Engine) Advance(dt float64) (Frame, error) {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt < 0 {
		return Frame{}, &RuntimeError{Code: ErrCodeInvalidTimestep, Message: "dt must be finite and non-negative", Value: dt}
	}

	steps, remainder, dropped := e.budget.Split(e.acc + dt)
	e.acc = remainder
	if dropped > 0 {
		e.droppedTime += dropped
		e.logger.Debug("sub-step cap reached",
			"cap", e.budget.MaxSteps(),
			"dropped_s", dropped)
	}

	before := e.instabilities
	e.events = e.events[:0]
	var flow float64
	for s := 0; s < steps; s++ {
		flow += e.subStep(s)
	}
	if steps > 0 {
		e.exhaustFlow = flow / float64(steps)
	}
	if n := e.instabilities - before; n > 0 {
		e.logger.Warn("numeric instability clamped",
			"count", n,
			"substep", e.clock.Current(),
			"rpm", e.state.RPM())
	}

	ch := e.channels.Channels()
	raw := e.raw[:steps*ch]
	env := e.envelope[:steps]
	clear(raw)
	clear(env)
	acoustic.Map(e.events, e.channels, raw)
	acoustic.Envelope(e.events, env)

	return Frame{Samples: raw, Envelope: env, Steps: steps, Dropped: dropped}, nil
}

// subStep advances one fixed sub-step and returns the total exhaust flow.
func (e *Engine) subStep(offset int) float64 {
	dtSub := 1 / e.frequency
	dtFluid := dtSub / float64(e.fluidSteps)
	fire := e.ignition && !e.limiting

	clear(e.ampSum)
	clear(e.specSum)
	var torque, flow float64
	for f := 0; f < e.fluidSteps; f++ {
		if !e.manifold.Step(e.throttle, e.pendingDraw, dtFluid) {
			e.instabilities++
		}
		in := fluid.StepInput{
			CrankAngle:       e.state.Angle + e.state.Omega*dtFluid*float64(f),
			ManifoldPressure: e.manifold.Pressure(),
			Ignition:         fire,
			DT:               dtFluid,
		}
		e.pendingDraw = 0
		for _, i := range e.order {
			out := e.cylinders[i].Step(in)
			if out.Unstable {
				e.instabilities++
			}
			torque += out.Torque
			flow += out.ExhaustFlow
			e.pendingDraw += out.IntakeMass
			e.ampSum[i] += out.Event.Amplitude
			e.specSum[i] += out.Event.Spectral
		}
	}
	k := float64(e.fluidSteps)

	drive := torque/k + e.starter.Output(e.state.RPM())
	next, capped, ok := e.shaft.Integrate(e.state, drive, e.load.Torque(e.state.Omega), dtSub)
	if capped || !ok {
		e.instabilities++
	}
	e.state = next

	if e.revLimit > 0 {
		rpm := e.state.RPM()
		switch {
		case rpm > e.revLimit:
			e.limiting = true
		case rpm < e.revLimit*revLimitHysteresis:
			e.limiting = false
		}
	}

	for _, i := range e.order {
		e.events = append(e.events, ir.AcousticEvent{
			Cylinder:  i,
			Offset:    offset,
			Amplitude: e.ampSum[i] / k,
			Spectral:  e.specSum[i] / k,
		})
	}
	e.clock.Next()
	return flow / k
}

// Snapshot fills the physical fields of a stats snapshot. Buffer, version
// and timing fields are left for the caller.
func (e *Engine) Snapshot() ir.StatsSnapshot {
	pressure := e.manifold.Pressure()
	var load float64
	if len(e.cylinders) > 0 {
		load = pressure / fluid.AmbientPressure
	}
	return ir.StatsSnapshot{
		RPM:              e.state.RPM(),
		Load:             load,
		ExhaustFlow:      e.exhaustFlow,
		ManifoldPressure: pressure,
		ActiveChannels:   e.channels.ActiveChannels(),
		Throttle:         e.throttle,
		SimulatedTime:    float64(e.clock.Current()) / e.frequency,
		SubSteps:         e.clock.Current(),
		Instabilities:    e.instabilities,
	}
}

// DroppedTime returns the total simulated seconds dropped by the cap.
func (e *Engine) DroppedTime() float64 { return e.droppedTime }
