// Package enginesim simulates an internal-combustion engine and renders its
// sound as an audio stream.
//
// Callers create a simulator from a Config, load an engine topology written
// in CUE, then drive it from one goroutine while another pulls audio:
//
//	h, err := enginesim.Create(enginesim.DefaultConfig())
//	err = enginesim.LoadTopology(h, script)
//	err = enginesim.SetThrottle(h, 0.5)
//	err = enginesim.Advance(h, 1.0/60)      // simulation goroutine
//	n, err := enginesim.Render(h, out, 128) // audio goroutine
//	stats, err := enginesim.Stats(h)
//	err = enginesim.Destroy(h)
//
// Every function reports failure through its error; LastError returns the
// message of the most recent failure for a handle. The functions operate on
// a process-wide registry; programs that want isolated tables can use
// internal/sim directly.
package enginesim

import (
	"github.com/roach88/enginesim/internal/compiler"
	"github.com/roach88/enginesim/internal/config"
	"github.com/roach88/enginesim/internal/ir"
	"github.com/roach88/enginesim/internal/sim"
)

type (
	// Handle identifies one simulator. The zero Handle is never valid.
	Handle = sim.Handle

	// Config is the simulator configuration.
	Config = config.EngineConfig

	// Snapshot is a copy-out view of one simulator's state.
	Snapshot = ir.StatsSnapshot

	// Topology is a compiled engine definition.
	Topology = ir.Topology

	// Error is returned by every failing operation.
	Error = sim.Error
)

// Sentinel errors for errors.Is.
var (
	ErrInvalidArgument   = sim.ErrInvalidArgument
	ErrInvalidHandle     = sim.ErrInvalidHandle
	ErrParseFailure      = sim.ErrParseFailure
	ErrNotYetAvailable   = sim.ErrNotYetAvailable
	ErrResourceExhausted = sim.ErrResourceExhausted
)

var registry = sim.NewRegistry(sim.WithLoader(compiler.NewCUELoader()))

// DefaultConfig returns a configuration that passes ValidateConfig.
func DefaultConfig() Config { return config.Default() }

// ValidateConfig checks cfg without side effects.
func ValidateConfig(cfg Config) error { return sim.ValidateConfig(cfg) }

// Create allocates a simulator with an empty topology.
func Create(cfg Config) (Handle, error) { return registry.Create(cfg) }

// LoadTopology compiles a CUE script and makes it the active topology.
// On failure the previous topology keeps running.
func LoadTopology(h Handle, source string) error { return registry.LoadTopology(h, source) }

// SetThrottle sets the throttle position in [0,1].
func SetThrottle(h Handle, v float64) error { return registry.SetThrottle(h, v) }

// SetIgnition switches the ignition.
func SetIgnition(h Handle, on bool) error { return registry.SetIgnition(h, on) }

// SetStarter engages or releases the starter motor.
func SetStarter(h Handle, on bool) error { return registry.SetStarter(h, on) }

// Advance runs the simulation forward by dt seconds of wall time.
func Advance(h Handle, dt float64) error { return registry.Advance(h, dt) }

// Render writes up to frames interleaved audio frames into out and returns
// how many were available. The rest of the request is filled with silence.
func Render(h Handle, out []float32, frames int) (int, error) {
	return registry.Render(h, out, frames)
}

// Stats returns the latest published snapshot.
func Stats(h Handle) (Snapshot, error) { return registry.Stats(h) }

// TopologyOf returns the active topology. Callers must not modify it.
func TopologyOf(h Handle) (*Topology, error) { return registry.TopologyOf(h) }

// LastError returns the last error message for h, or "" if none.
func LastError(h Handle) string { return registry.LastError(h) }

// Destroy releases a simulator. The handle is invalid afterwards.
func Destroy(h Handle) error { return registry.Destroy(h) }

// Version returns the library version string.
func Version() string { return sim.Version() }
