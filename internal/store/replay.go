package store

import (
	"context"
	"fmt"

	"github.com/roach88/enginesim/internal/ir"
	"github.com/roach88/enginesim/internal/sim"
)

// ReplayResult reports how a replayed session compared with its recording.
type ReplayResult struct {
	SessionID string
	Inputs    int
	Checked   int // snapshots compared
	Mismatch  *Mismatch
}

// Mismatch is the first snapshot a replay failed to reproduce.
type Mismatch struct {
	Seq  int64
	Want ir.StatsSnapshot
	Got  ir.StatsSnapshot
}

// OK reports whether every recorded snapshot was reproduced.
func (r ReplayResult) OK() bool { return r.Mismatch == nil }

// Replay re-creates a recorded session in reg, applies its inputs in seq
// order and compares every recorded snapshot. It stops at the first
// mismatch. The replayed simulator is destroyed before returning.
func Replay(ctx context.Context, st *Store, reg *sim.Registry, sessionID string) (ReplayResult, error) {
	result := ReplayResult{SessionID: sessionID}

	sess, err := st.ReadSession(ctx, sessionID)
	if err != nil {
		return result, fmt.Errorf("replay: %w", err)
	}
	inputs, err := st.ReadInputs(ctx, sessionID)
	if err != nil {
		return result, fmt.Errorf("replay: %w", err)
	}
	snapshots, err := st.ReadSnapshots(ctx, sessionID)
	if err != nil {
		return result, fmt.Errorf("replay: %w", err)
	}
	want := make(map[int64]ir.StatsSnapshot, len(snapshots))
	for _, rec := range snapshots {
		want[rec.Seq] = rec.Stats
	}

	h, err := reg.Create(sess.Config)
	if err != nil {
		return result, fmt.Errorf("replay: %w", err)
	}
	defer reg.Destroy(h)
	s, err := reg.Simulator(h)
	if err != nil {
		return result, fmt.Errorf("replay: %w", err)
	}

	var out []float32
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := apply(s, in, &out); err != nil {
			return result, fmt.Errorf("replay input %d (%s): %w", in.Seq, in.Kind, err)
		}
		result.Inputs++

		expected, ok := want[in.Seq]
		if !ok {
			continue
		}
		got, err := s.Stats()
		if err != nil {
			return result, fmt.Errorf("replay snapshot %d: %w", in.Seq, err)
		}
		got.ProcessingTimeMs = 0
		result.Checked++
		if got != expected {
			result.Mismatch = &Mismatch{Seq: in.Seq, Want: expected, Got: got}
			return result, nil
		}
	}
	return result, nil
}

// apply performs one recorded input. out is reused across render inputs.
func apply(s *sim.Simulator, in ir.Input, out *[]float32) error {
	switch in.Kind {
	case ir.InputLoad:
		return s.LoadTopology(in.Text)
	case ir.InputThrottle:
		return s.SetThrottle(in.Value)
	case ir.InputIgnition:
		s.SetIgnition(in.Value != 0)
	case ir.InputStarter:
		s.SetStarter(in.Value != 0)
	case ir.InputAdvance:
		return s.Advance(in.Value)
	case ir.InputRender:
		frames := int(in.Value)
		need := max(frames, 0) * s.Config().OutputChannels()
		if cap(*out) < need {
			*out = make([]float32, need)
		}
		s.Render((*out)[:need], frames)
	default:
		return fmt.Errorf("unknown input kind %q", in.Kind)
	}
	return nil
}
