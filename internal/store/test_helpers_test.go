package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/enginesim/internal/compiler"
	"github.com/roach88/enginesim/internal/config"
	"github.com/roach88/enginesim/internal/ir"
	"github.com/roach88/enginesim/internal/sim"
	"github.com/roach88/enginesim/internal/testutil"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession writes a session with the fast test config.
func createTestSession(t *testing.T, s *Store, id string) ir.Session {
	t.Helper()
	sess := ir.Session{
		ID:            id,
		Config:        testutil.FastConfig(),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	if err := s.WriteSession(context.Background(), sess); err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	return sess
}

// newTestRegistry returns a registry with a CUE loader and no log output.
func newTestRegistry() *sim.Registry {
	return sim.NewRegistry(
		sim.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		sim.WithLoader(compiler.NewCUELoader()),
	)
}

// newTestSimulator creates a simulator in reg and returns it.
func newTestSimulator(t *testing.T, reg *sim.Registry, cfg config.EngineConfig) *sim.Simulator {
	t.Helper()
	h, err := reg.Create(cfg)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	t.Cleanup(func() { reg.Destroy(h) })
	s, err := reg.Simulator(h)
	if err != nil {
		t.Fatalf("Simulator() failed: %v", err)
	}
	return s
}
