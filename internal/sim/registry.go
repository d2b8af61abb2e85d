// Package sim is the handle-based facade over engine simulations.
//
// A Registry owns every simulator it creates and hands out opaque Handles.
// A handle packs a slot index with the slot's generation, so a handle kept
// after Destroy never reaches the slot's next occupant.
//
// Lifecycle:
//
//	Create -> Created --LoadTopology--> Ready --Destroy--> Destroyed
//
// Advance, Render and SetThrottle are valid in Created (an empty engine:
// zero RPM, silent output) and in Ready. Every operation on a destroyed or
// unknown handle fails with CodeInvalidHandle.
//
// The registry lock guards slot lookups only. Simulators follow the
// single-writer discipline documented on Simulator; Destroy must not race
// with an in-flight call on the same handle.
package sim

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/enginesim/internal/config"
	"github.com/roach88/enginesim/internal/engine"
	"github.com/roach88/enginesim/internal/ir"
)

// DefaultMaxHandles bounds the number of live simulators per registry.
const DefaultMaxHandles = 1024

// Handle identifies one simulator. The zero Handle is never valid.
type Handle uint64

func makeHandle(slot int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(uint32(slot)))
}

func (h Handle) slot() int      { return int(uint32(h)) }
func (h Handle) gen() uint32    { return uint32(h >> 32) }
func (h Handle) String() string { return fmt.Sprintf("%d:%d", h.slot(), h.gen()) }

type slot struct {
	gen uint32
	sim *Simulator
}

// Registry is a table of simulators addressed by Handle.
type Registry struct {
	mu    sync.RWMutex
	slots    []slot
	free     []int
	live     int
	reserved int // Creates between the capacity check and slot assignment

	lastErr atomic.Pointer[string] // failures with no live handle

	logger     *slog.Logger
	loader     TopologyLoader
	now        func() time.Time
	maxHandles int
	engineOpts []engine.EngineOption
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger for the registry and its simulators.
// Default: slog.Default().
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithLoader sets the script loader used by LoadTopology.
func WithLoader(l TopologyLoader) RegistryOption {
	return func(r *Registry) {
		r.loader = l
	}
}

// WithNow sets the wall clock used to time Render calls.
// Default: time.Now.
func WithNow(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMaxHandles bounds the number of live simulators.
func WithMaxHandles(n int) RegistryOption {
	return func(r *Registry) {
		r.maxHandles = n
	}
}

// WithEngineOptions passes options to every engine the registry builds.
func WithEngineOptions(opts ...engine.EngineOption) RegistryOption {
	return func(r *Registry) {
		r.engineOpts = append(r.engineOpts, opts...)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:     slog.Default(),
		now:        time.Now,
		maxHandles: DefaultMaxHandles,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Version returns the process-wide version string.
func Version() string {
	return ir.VersionString()
}

// ValidateConfig checks cfg without side effects.
func ValidateConfig(cfg config.EngineConfig) error {
	if err := config.Validate(cfg); err != nil {
		return newError(CodeInvalidArgument, "ValidateConfig", "invalid config", err)
	}
	return nil
}

// Len returns the number of live simulators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live
}

// Create validates cfg and allocates a simulator in the Created state.
func (r *Registry) Create(cfg config.EngineConfig) (Handle, error) {
	if err := config.Validate(cfg); err != nil {
		return 0, r.failGlobal(newError(CodeInvalidArgument, "Create", "invalid config", err))
	}
	if !config.IsPowerOfTwo(cfg.InputBufferSize) || !config.IsPowerOfTwo(cfg.AudioBufferSize) {
		r.logger.Debug("buffer size is not a power of two",
			"input_buffer_size", cfg.InputBufferSize,
			"audio_buffer_size", cfg.AudioBufferSize)
	}

	r.mu.Lock()
	if r.live+r.reserved >= r.maxHandles {
		live := r.live
		r.mu.Unlock()
		return 0, r.failGlobal(newError(CodeResourceExhausted, "Create",
			fmt.Sprintf("handle table full (%d live)", live), nil))
	}
	r.reserved++
	r.mu.Unlock()

	s, err := r.build(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.reserved--
	if err != nil {
		return 0, r.failGlobal(err)
	}

	var idx int
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{gen: 1})
		idx = len(r.slots) - 1
	}
	r.slots[idx].sim = s
	r.live++

	h := makeHandle(idx, r.slots[idx].gen)
	r.logger.Debug("simulator created", "handle", h.String(), "channels", cfg.OutputChannels())
	return h, nil
}

// build allocates a simulator, turning allocation panics into
// CodeResourceExhausted.
func (r *Registry) build(cfg config.EngineConfig) (s *Simulator, err error) {
	defer func() {
		if p := recover(); p != nil {
			s = nil
			err = newError(CodeResourceExhausted, "Create", fmt.Sprintf("allocation failed: %v", p), nil)
		}
	}()
	opts := append([]engine.EngineOption{engine.WithLogger(r.logger)}, r.engineOpts...)
	return newSimulator(cfg, r.logger, r.loader, r.now, opts), nil
}

// lookup returns the simulator for h or an invalid-handle error.
func (r *Registry) lookup(op string, h Handle) (*Simulator, error) {
	r.mu.RLock()
	var s *Simulator
	if idx := h.slot(); idx < len(r.slots) && r.slots[idx].gen == h.gen() {
		s = r.slots[idx].sim
	}
	r.mu.RUnlock()

	if s == nil {
		return nil, r.failGlobal(newError(CodeInvalidHandle, op, "unknown or destroyed handle "+h.String(), nil))
	}
	return s, nil
}

func (r *Registry) failGlobal(err error) error {
	msg := err.Error()
	r.lastErr.Store(&msg)
	return err
}

// Destroy releases the simulator behind h. A second Destroy fails with
// CodeInvalidHandle.
func (r *Registry) Destroy(h Handle) error {
	r.mu.Lock()
	idx := h.slot()
	if idx >= len(r.slots) || r.slots[idx].gen != h.gen() || r.slots[idx].sim == nil {
		r.mu.Unlock()
		return r.failGlobal(newError(CodeInvalidHandle, "Destroy", "unknown or destroyed handle "+h.String(), nil))
	}
	s := r.slots[idx].sim
	s.state.Store(int32(StateDestroyed))
	r.slots[idx].sim = nil
	r.slots[idx].gen++
	if r.slots[idx].gen == 0 {
		r.slots[idx].gen = 1
	}
	r.free = append(r.free, idx)
	r.live--
	r.mu.Unlock()

	r.logger.Debug("simulator destroyed", "handle", h.String())
	return nil
}

// Simulator returns the simulator behind h for callers that drive it
// directly, such as the session recorder.
func (r *Registry) Simulator(h Handle) (*Simulator, error) {
	return r.lookup("Simulator", h)
}

// LoadTopology compiles source and makes it the active topology of h.
func (r *Registry) LoadTopology(h Handle, source string) error {
	s, err := r.lookup("LoadTopology", h)
	if err != nil {
		return err
	}
	return s.LoadTopology(source)
}

// SetThrottle sets the throttle of h.
func (r *Registry) SetThrottle(h Handle, v float64) error {
	s, err := r.lookup("SetThrottle", h)
	if err != nil {
		return err
	}
	return s.SetThrottle(v)
}

// SetIgnition switches the ignition of h.
func (r *Registry) SetIgnition(h Handle, on bool) error {
	s, err := r.lookup("SetIgnition", h)
	if err != nil {
		return err
	}
	s.SetIgnition(on)
	return nil
}

// SetStarter engages or releases the starter of h.
func (r *Registry) SetStarter(h Handle, on bool) error {
	s, err := r.lookup("SetStarter", h)
	if err != nil {
		return err
	}
	s.SetStarter(on)
	return nil
}

// Advance runs h forward by dt seconds.
func (r *Registry) Advance(h Handle, dt float64) error {
	s, err := r.lookup("Advance", h)
	if err != nil {
		return err
	}
	return s.Advance(dt)
}

// Render drains up to frames audio frames of h into out.
func (r *Registry) Render(h Handle, out []float32, frames int) (int, error) {
	s, err := r.lookup("Render", h)
	if err != nil {
		return 0, err
	}
	return s.Render(out, frames), nil
}

// Stats returns the latest snapshot of h.
func (r *Registry) Stats(h Handle) (ir.StatsSnapshot, error) {
	s, err := r.lookup("Stats", h)
	if err != nil {
		return ir.StatsSnapshot{}, err
	}
	return s.Stats()
}

// StateOf returns the lifecycle state of h.
func (r *Registry) StateOf(h Handle) (State, error) {
	s, err := r.lookup("StateOf", h)
	if err != nil {
		return StateDestroyed, err
	}
	return s.State(), nil
}

// TopologyOf returns the active topology of h.
func (r *Registry) TopologyOf(h Handle) (*ir.Topology, error) {
	s, err := r.lookup("TopologyOf", h)
	if err != nil {
		return nil, err
	}
	return s.Topology(), nil
}

// LastError returns the last error recorded for h. For a handle that is
// not live it returns the registry's last error instead, which is where
// failed Create calls and invalid-handle rejections are recorded. It
// returns "" when nothing has failed.
func (r *Registry) LastError(h Handle) string {
	r.mu.RLock()
	var s *Simulator
	if idx := h.slot(); idx < len(r.slots) && r.slots[idx].gen == h.gen() {
		s = r.slots[idx].sim
	}
	r.mu.RUnlock()

	if s != nil {
		return s.LastError()
	}
	if p := r.lastErr.Load(); p != nil {
		return *p
	}
	return ""
}
