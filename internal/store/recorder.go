package store

import (
	"context"
	"fmt"

	"github.com/roach88/enginesim/internal/engine"
	"github.com/roach88/enginesim/internal/ir"
	"github.com/roach88/enginesim/internal/sim"
)

// DefaultSnapshotEvery is how many Advance calls pass between snapshots.
const DefaultSnapshotEvery = 10

// Recorder drives a simulator and records every accepted input, plus a
// snapshot every few advances, as one session.
//
// Inputs the simulator rejects are not recorded: replay applies exactly
// the inputs that changed state.
//
// Thread-safety: Recorder belongs to the simulator's writer goroutine.
// Render is recorded too, so it must be called from the same goroutine.
type Recorder struct {
	store     *Store
	sim       *sim.Simulator
	sessionID string
	seq       *engine.Clock
	every     int
	advances  int
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithSnapshotEvery sets the number of advances between snapshots.
// Values below 1 record a snapshot after every advance.
func WithSnapshotEvery(n int) RecorderOption {
	return func(r *Recorder) {
		r.every = max(n, 1)
	}
}

// NewRecorder writes a session record for s and returns a recorder for it.
func NewRecorder(ctx context.Context, st *Store, s *sim.Simulator, ids IDGenerator, opts ...RecorderOption) (*Recorder, error) {
	r := &Recorder{
		store:     st,
		sim:       s,
		sessionID: ids.Generate(),
		seq:       engine.NewClock(),
		every:     DefaultSnapshotEvery,
	}
	for _, opt := range opts {
		opt(r)
	}

	err := st.WriteSession(ctx, ir.Session{
		ID:            r.sessionID,
		Config:        s.Config(),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("new recorder: %w", err)
	}
	return r, nil
}

// SessionID returns the recorded session's ID.
func (r *Recorder) SessionID() string { return r.sessionID }

// Simulator returns the recorded simulator.
func (r *Recorder) Simulator() *sim.Simulator { return r.sim }

func (r *Recorder) record(ctx context.Context, kind ir.InputKind, value float64, text string) error {
	return r.store.WriteInput(ctx, r.sessionID, ir.Input{
		Seq:   r.seq.Next(),
		Kind:  kind,
		Value: value,
		Text:  text,
	})
}

// LoadTopology applies and records a script load.
func (r *Recorder) LoadTopology(ctx context.Context, source string) error {
	if err := r.sim.LoadTopology(source); err != nil {
		return err
	}
	return r.record(ctx, ir.InputLoad, 0, source)
}

// SetThrottle applies and records a throttle change.
func (r *Recorder) SetThrottle(ctx context.Context, v float64) error {
	if err := r.sim.SetThrottle(v); err != nil {
		return err
	}
	return r.record(ctx, ir.InputThrottle, v, "")
}

// SetIgnition applies and records an ignition switch.
func (r *Recorder) SetIgnition(ctx context.Context, on bool) error {
	r.sim.SetIgnition(on)
	return r.record(ctx, ir.InputIgnition, boolValue(on), "")
}

// SetStarter applies and records a starter change.
func (r *Recorder) SetStarter(ctx context.Context, on bool) error {
	r.sim.SetStarter(on)
	return r.record(ctx, ir.InputStarter, boolValue(on), "")
}

// Advance applies and records a time step, then writes a snapshot if one
// is due.
func (r *Recorder) Advance(ctx context.Context, dt float64) error {
	if err := r.sim.Advance(dt); err != nil {
		return err
	}
	if err := r.record(ctx, ir.InputAdvance, dt, ""); err != nil {
		return err
	}
	r.advances++
	if r.advances%r.every == 0 {
		return r.Snapshot(ctx)
	}
	return nil
}

// Render drains audio into out and records the request. Buffer fill and
// underrun counts appear in snapshots, so replay must render identically.
func (r *Recorder) Render(ctx context.Context, out []float32, frames int) (int, error) {
	n := r.sim.Render(out, frames)
	if err := r.record(ctx, ir.InputRender, float64(frames), ""); err != nil {
		return n, err
	}
	return n, nil
}

// Snapshot records the latest published stats against the last input.
// It does nothing before the first Advance.
func (r *Recorder) Snapshot(ctx context.Context) error {
	stats, err := r.sim.Stats()
	if sim.IsNotYetAvailable(err) {
		return nil
	}
	if err != nil {
		return err
	}
	stats.ProcessingTimeMs = 0
	return r.store.WriteSnapshot(ctx, r.sessionID, ir.SnapshotRecord{Seq: r.seq.Current(), Stats: stats})
}

// Close records a final snapshot.
func (r *Recorder) Close(ctx context.Context) error {
	return r.Snapshot(ctx)
}

func boolValue(on bool) float64 {
	if on {
		return 1
	}
	return 0
}
