package store

import (
	"context"
	"fmt"

	"github.com/roach88/enginesim/internal/ir"
)

// WriteSession inserts a session record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteSession(ctx context.Context, sess ir.Session) error {
	cfgJSON, err := marshalConfig(sess.Config)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, config, engine_version, ir_version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		cfgJSON,
		sess.EngineVersion,
		sess.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteInput appends one control input to a session.
//
// Note: The session must exist (foreign key constraint), and seq must be
// unique within the session.
func (s *Store) WriteInput(ctx context.Context, sessionID string, in ir.Input) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inputs
		(session_id, seq, kind, value, text)
		VALUES (?, ?, ?, ?, ?)
	`,
		sessionID,
		in.Seq,
		string(in.Kind),
		in.Value,
		in.Text,
	)
	if err != nil {
		return fmt.Errorf("write input: %w", err)
	}
	return nil
}

// WriteSnapshot stores the stats published after input rec.Seq.
// Writing the same seq twice keeps the first snapshot.
func (s *Store) WriteSnapshot(ctx context.Context, sessionID string, rec ir.SnapshotRecord) error {
	statsJSON, err := marshalStats(rec.Stats)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots
		(session_id, seq, stats)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		sessionID,
		rec.Seq,
		statsJSON,
	)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
