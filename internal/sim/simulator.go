package sim

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/enginesim/internal/config"
	"github.com/roach88/enginesim/internal/engine"
	"github.com/roach88/enginesim/internal/ir"
	"github.com/roach88/enginesim/internal/synth"
)

// State is a simulator's lifecycle state.
type State int32

const (
	StateCreated   State = iota + 1 // no topology loaded yet
	StateReady                      // a topology is active
	StateDestroyed                  // terminal
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// TopologyLoader turns script source into a topology. Implementations
// return an error for any script they cannot compile.
type TopologyLoader interface {
	Load(source string) (*ir.Topology, error)
}

// LoaderFunc adapts a function to TopologyLoader.
type LoaderFunc func(source string) (*ir.Topology, error)

// Load calls f.
func (f LoaderFunc) Load(source string) (*ir.Topology, error) { return f(source) }

// Simulator owns one engine simulation and its synthesizer.
//
// Thread-safety model:
//   - LoadTopology, SetThrottle, SetIgnition, SetStarter and Advance belong
//     to a single writer goroutine
//   - Render belongs to a single audio goroutine, which may differ
//   - Stats, State and LastError are safe from any goroutine
type Simulator struct {
	cfg        config.EngineConfig
	logger     *slog.Logger
	loader     TopologyLoader
	now        func() time.Time
	engineOpts []engine.EngineOption

	// writer side
	engine     *engine.Engine
	synth      *synth.Synthesizer
	ignition   bool
	sourceHash string
	version    int64

	state        atomic.Int32
	stats        atomic.Pointer[ir.StatsSnapshot]
	processingNs atomic.Int64 // duration of the last Render
	lastErr      atomic.Pointer[string]
}

func newSimulator(cfg config.EngineConfig, logger *slog.Logger, loader TopologyLoader, now func() time.Time, opts []engine.EngineOption) *Simulator {
	s := &Simulator{
		cfg:        cfg,
		logger:     logger,
		loader:     loader,
		now:        now,
		engineOpts: opts,
		ignition:   true,
	}
	s.engine = engine.New(cfg, ir.EmptyTopology(), opts...)
	s.synth = synth.New(cfg, s.engine.MaxSubSteps())
	s.state.Store(int32(StateCreated))
	return s
}

// State returns the lifecycle state.
func (s *Simulator) State() State { return State(s.state.Load()) }

// Config returns the validated configuration.
func (s *Simulator) Config() config.EngineConfig { return s.cfg }

// Topology returns the active topology. Callers must not modify it.
func (s *Simulator) Topology() *ir.Topology { return s.engine.Topology() }

// SourceHash returns the hash of the last successfully loaded script, or
// "" before the first load.
func (s *Simulator) SourceHash() string { return s.sourceHash }

// LastError returns the message of the most recent failed operation, or "".
func (s *Simulator) LastError() string {
	if p := s.lastErr.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *Simulator) fail(err *Error) error {
	msg := err.Error()
	s.lastErr.Store(&msg)
	return err
}

// LoadTopology compiles source and replaces the running engine with a new
// one for the resulting topology. Cylinder and crank state restart from
// rest; simulated time, throttle, ignition and buffered audio carry over.
// On failure the previous topology keeps running.
func (s *Simulator) LoadTopology(source string) error {
	if s.loader == nil {
		return s.fail(newError(CodeParseFailure, "LoadTopology", "no topology loader configured", nil))
	}
	topo, err := s.loader.Load(source)
	if err != nil {
		s.logger.Debug("topology rejected", "error", err)
		return s.fail(newError(CodeParseFailure, "LoadTopology", "script did not compile", err))
	}
	if topo == nil {
		topo = ir.EmptyTopology()
	}

	throttle := s.engine.Throttle()
	next := engine.NewWithClock(s.cfg, topo, s.engine.Clock(), s.engineOpts...)
	_ = next.SetThrottle(throttle)
	next.SetIgnition(s.ignition)

	s.engine = next
	s.sourceHash = ir.SourceHash(source)
	s.state.Store(int32(StateReady))
	s.logger.Info("topology loaded",
		"name", topo.Name,
		"cylinders", len(topo.Cylinders),
		"source_hash", s.sourceHash[:12])
	return nil
}

// SetThrottle sets the throttle position in [0,1].
func (s *Simulator) SetThrottle(v float64) error {
	if err := s.engine.SetThrottle(v); err != nil {
		return s.fail(newError(CodeInvalidArgument, "SetThrottle", "throttle out of range", err))
	}
	return nil
}

// SetIgnition switches the ignition. The setting survives topology reloads.
func (s *Simulator) SetIgnition(on bool) {
	s.ignition = on
	s.engine.SetIgnition(on)
}

// SetStarter engages or releases the starter motor.
func (s *Simulator) SetStarter(on bool) {
	s.engine.SetStarter(on)
}

// Advance runs the simulation forward by dt seconds, feeds the resulting
// audio to the synthesizer and publishes a new stats snapshot. A rejected
// dt changes nothing.
func (s *Simulator) Advance(dt float64) error {
	frame, err := s.engine.Advance(dt)
	if err != nil {
		return s.fail(newError(CodeInvalidArgument, "Advance", "invalid time step", err))
	}
	s.synth.Accumulate(frame.Samples, frame.Envelope, frame.Steps)
	s.publish()
	return nil
}

// publish swaps in a fresh snapshot. Readers holding the previous one keep
// a consistent copy.
func (s *Simulator) publish() {
	snap := s.engine.Snapshot()
	s.version++
	snap.Version = s.version
	snap.BufferedFrames = s.synth.Buffered()
	snap.Underruns = s.synth.Underruns()
	snap.Overflows = s.synth.Overflows()
	snap.ProcessingTimeMs = float64(s.processingNs.Load()) / float64(time.Millisecond)
	s.stats.Store(&snap)
}

// Render drains up to frames audio frames into out and returns the number
// produced. Missing frames are filled with silence and counted as an
// underrun in the next snapshot. Render never blocks.
func (s *Simulator) Render(out []float32, frames int) int {
	start := s.now()
	n, _ := s.synth.Render(out, frames)
	s.processingNs.Store(int64(s.now().Sub(start)))
	return n
}

// Stats returns the latest published snapshot. Before the first Advance
// there is nothing to return.
func (s *Simulator) Stats() (ir.StatsSnapshot, error) {
	p := s.stats.Load()
	if p == nil {
		return ir.StatsSnapshot{}, s.fail(newError(CodeNotYetAvailable, "Stats", "no Advance has completed", nil))
	}
	return *p, nil
}
