package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/enginesim/internal/compiler"
	"github.com/roach88/enginesim/internal/ir"
	"github.com/roach88/enginesim/internal/sim"
	"github.com/roach88/enginesim/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string
}

// ReplayReport is the outcome for one replayed session.
type ReplayReport struct {
	SessionID string            `json:"session_id"`
	Inputs    int               `json:"inputs"`
	Checked   int               `json:"checked"`
	OK        bool              `json:"ok"`
	Seq       int64             `json:"mismatch_seq,omitempty"`
	Want      *ir.StatsSnapshot `json:"want,omitempty"`
	Got       *ir.StatsSnapshot `json:"got,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded sessions and verify determinism",
		Long: `Re-run recorded sessions from their inputs and compare the stats
snapshots against the recording.

Without --session every session in the database is replayed. The command
exits 1 if any snapshot differs.

Examples:
  enginesim replay --db sessions.db
  enginesim replay --db sessions.db --session 0192a4f0-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database holding recorded sessions")
	cmd.Flags().StringVar(&opts.Session, "session", "", "replay only this session")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ids := []string{opts.Session}
	if opts.Session == "" {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		ids = ids[:0]
		for _, sess := range sessions {
			ids = append(ids, sess.ID)
		}
	}

	reports := make([]ReplayReport, 0, len(ids))
	failed := 0
	for _, id := range ids {
		reg := sim.NewRegistry(sim.WithLogger(slog.Default()), sim.WithLoader(compiler.NewCUELoader()))
		res, err := store.Replay(ctx, st, reg, id)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("replay %s failed", id), err)
		}

		report := ReplayReport{SessionID: id, Inputs: res.Inputs, Checked: res.Checked, OK: res.OK()}
		if m := res.Mismatch; m != nil {
			failed++
			report.Seq = m.Seq
			report.Want = &m.Want
			report.Got = &m.Got
		}
		reports = append(reports, report)

		if report.OK {
			formatter.Printf("%s: ok (%d inputs, %d snapshots)\n", id, report.Inputs, report.Checked)
		} else {
			formatter.Printf("%s: MISMATCH at seq %d\n", id, report.Seq)
			formatter.Printf("  want %+v\n  got  %+v\n", *report.Want, *report.Got)
		}
	}

	if formatter.IsJSON() {
		if err := formatter.Success(reports); err != nil {
			return err
		}
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d sessions diverged", failed, len(reports)))
	}
	return nil
}

// openExisting opens a store that must already exist.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
