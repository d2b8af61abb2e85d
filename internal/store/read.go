package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/enginesim/internal/ir"
	"github.com/roach88/enginesim/internal/queryir"
	"github.com/roach88/enginesim/internal/querysql"
)

// ErrSessionNotFound is returned when a session ID has no record.
var ErrSessionNotFound = errors.New("session not found")

// ReadSession returns the session record for id.
func (s *Store) ReadSession(ctx context.Context, id string) (ir.Session, error) {
	var (
		sess    ir.Session
		cfgJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, config, engine_version, ir_version
		FROM sessions
		WHERE id = ?
	`, id).Scan(&sess.ID, &cfgJSON, &sess.EngineVersion, &sess.IRVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Session{}, fmt.Errorf("read session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return ir.Session{}, fmt.Errorf("read session: %w", err)
	}

	sess.Config, err = unmarshalConfig(cfgJSON)
	if err != nil {
		return ir.Session{}, fmt.Errorf("read session: %w", err)
	}
	return sess, nil
}

// ListSessions returns all sessions ordered by ID. UUIDv7 IDs sort by
// creation time.
//
// Returns an empty slice (not nil) if the store holds no sessions.
func (s *Store) ListSessions(ctx context.Context) ([]ir.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, config, engine_version, ir_version
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []ir.Session{}
	for rows.Next() {
		var (
			sess    ir.Session
			cfgJSON string
		)
		if err := rows.Scan(&sess.ID, &cfgJSON, &sess.EngineVersion, &sess.IRVersion); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sess.Config, err = unmarshalConfig(cfgJSON); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadInputs returns a session's inputs in seq order.
//
// Returns an empty slice (not nil) if the session has no inputs.
func (s *Store) ReadInputs(ctx context.Context, sessionID string) ([]ir.Input, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, value, text
		FROM inputs
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query inputs: %w", err)
	}
	defer rows.Close()

	inputs := []ir.Input{}
	for rows.Next() {
		var (
			in   ir.Input
			kind string
		)
		if err := rows.Scan(&in.Seq, &kind, &in.Value, &in.Text); err != nil {
			return nil, fmt.Errorf("scan input: %w", err)
		}
		in.Kind = ir.InputKind(kind)
		inputs = append(inputs, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inputs: %w", err)
	}
	return inputs, nil
}

// CountInputs returns how many inputs of kind a session has.
func (s *Store) CountInputs(ctx context.Context, sessionID string, kind ir.InputKind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM inputs
		WHERE session_id = ? AND kind = ?
	`, sessionID, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count inputs: %w", err)
	}
	return n, nil
}

// ReadSnapshots returns a session's snapshots in seq order.
//
// Returns an empty slice (not nil) if the session has no snapshots.
func (s *Store) ReadSnapshots(ctx context.Context, sessionID string) ([]ir.SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, stats
		FROM snapshots
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	records := []ir.SnapshotRecord{}
	for rows.Next() {
		var (
			rec       ir.SnapshotRecord
			statsJSON string
		)
		if err := rows.Scan(&rec.Seq, &statsJSON); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if rec.Stats, err = unmarshalStats(statsJSON); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return records, nil
}

// QueryInputs returns a session's inputs matching filter, in seq order.
// A nil filter matches every input.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryInputs(ctx context.Context, sessionID string, filter queryir.Predicate) ([]ir.Input, error) {
	query, params, err := querysql.NewSQLCompiler().Compile(queryir.Select{
		From:    queryir.SourceInputs,
		Session: sessionID,
		Filter:  filter,
	})
	if err != nil {
		return nil, fmt.Errorf("query inputs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query inputs: %w", err)
	}
	defer rows.Close()

	inputs := []ir.Input{}
	for rows.Next() {
		var (
			in   ir.Input
			kind string
		)
		if err := rows.Scan(&in.Seq, &kind, &in.Value, &in.Text); err != nil {
			return nil, fmt.Errorf("scan input: %w", err)
		}
		in.Kind = ir.InputKind(kind)
		inputs = append(inputs, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inputs: %w", err)
	}
	return inputs, nil
}

// QuerySnapshots returns a session's snapshots matching filter, in seq
// order. Filters compare stats fields, e.g. rpm>=1000.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QuerySnapshots(ctx context.Context, sessionID string, filter queryir.Predicate) ([]ir.SnapshotRecord, error) {
	query, params, err := querysql.NewSQLCompiler().Compile(queryir.Select{
		From:    queryir.SourceSnapshots,
		Session: sessionID,
		Filter:  filter,
	})
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	records := []ir.SnapshotRecord{}
	for rows.Next() {
		var (
			rec       ir.SnapshotRecord
			statsJSON string
		)
		if err := rows.Scan(&rec.Seq, &statsJSON); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if rec.Stats, err = unmarshalStats(statsJSON); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return records, nil
}
