package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/enginesim/internal/ir"
	"github.com/roach88/enginesim/internal/queryir"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Kind     string
	Where    string
}

// SessionSummary is one line of the session listing.
type SessionSummary struct {
	ID            string `json:"id"`
	EngineVersion string `json:"engine_version"`
	Advances      int    `json:"advances"`
	Renders       int    `json:"renders"`
}

// SessionTrace is a recorded session's full input log.
type SessionTrace struct {
	Session   ir.Session          `json:"session"`
	Inputs    []ir.Input          `json:"inputs"`
	Snapshots []ir.SnapshotRecord `json:"snapshots"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded sessions and their inputs",
		Long: `List the sessions in a database, or print one session's inputs and
snapshots in seq order.

--where filters snapshots by stats fields with comma-separated
comparisons; every comparison must hold.

Examples:
  enginesim trace --db sessions.db
  enginesim trace --db sessions.db --session 0192a4f0-... --kind throttle
  enginesim trace --db sessions.db --session 0192a4f0-... --where "rpm>=1000,underruns>0"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database holding recorded sessions")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to show (lists sessions if omitted)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only show inputs of this kind")
	cmd.Flags().StringVar(&opts.Where, "where", "", "only show snapshots matching these comparisons")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	if opts.Kind != "" && !slices.Contains(queryir.InputKinds, ir.InputKind(opts.Kind)) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid kind %q: must be one of %v", opts.Kind, queryir.InputKinds))
	}
	where, err := queryir.ParseFilter(opts.Where)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --where", err)
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.Session == "" {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		summaries := make([]SessionSummary, 0, len(sessions))
		for _, sess := range sessions {
			sum := SessionSummary{ID: sess.ID, EngineVersion: sess.EngineVersion}
			if sum.Advances, err = st.CountInputs(ctx, sess.ID, ir.InputAdvance); err != nil {
				return WrapExitError(ExitCommandError, "failed to count inputs", err)
			}
			if sum.Renders, err = st.CountInputs(ctx, sess.ID, ir.InputRender); err != nil {
				return WrapExitError(ExitCommandError, "failed to count inputs", err)
			}
			summaries = append(summaries, sum)
		}

		if formatter.IsJSON() {
			return formatter.Success(summaries)
		}
		if len(summaries) == 0 {
			formatter.Printf("no sessions\n")
		}
		for _, sum := range summaries {
			formatter.Printf("%s  engine %s  %d advances  %d renders\n",
				sum.ID, sum.EngineVersion, sum.Advances, sum.Renders)
		}
		return nil
	}

	sess, err := st.ReadSession(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}
	var kind queryir.Predicate
	if opts.Kind != "" {
		kind = queryir.KindIs{Kind: ir.InputKind(opts.Kind)}
	}
	inputs, err := st.QueryInputs(ctx, sess.ID, kind)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read inputs", err)
	}
	snapshots, err := st.QuerySnapshots(ctx, sess.ID, where)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshots", err)
	}

	if formatter.IsJSON() {
		return formatter.Success(SessionTrace{Session: sess, Inputs: inputs, Snapshots: snapshots})
	}

	formatter.Printf("session %s (engine %s, ir %s)\n", sess.ID, sess.EngineVersion, sess.IRVersion)
	// Both lists are in seq order; a snapshot prints after the input it follows.
	j := 0
	for _, in := range inputs {
		for ; j < len(snapshots) && snapshots[j].Seq < in.Seq; j++ {
			printSnapshot(formatter, snapshots[j])
		}
		formatter.Printf("%6d  %-8s %s\n", in.Seq, in.Kind, describeInput(in))
		for ; j < len(snapshots) && snapshots[j].Seq == in.Seq; j++ {
			printSnapshot(formatter, snapshots[j])
		}
	}
	for ; j < len(snapshots); j++ {
		printSnapshot(formatter, snapshots[j])
	}
	return nil
}

func printSnapshot(f *OutputFormatter, rec ir.SnapshotRecord) {
	f.Printf("%6d  snapshot v%d rpm %.1f t %.3f s underruns %d\n",
		rec.Seq, rec.Stats.Version, rec.Stats.RPM, rec.Stats.SimulatedTime, rec.Stats.Underruns)
}

func describeInput(in ir.Input) string {
	switch in.Kind {
	case ir.InputLoad:
		return fmt.Sprintf("%d bytes", len(in.Text))
	case ir.InputIgnition, ir.InputStarter:
		return fmt.Sprint(in.Value != 0)
	case ir.InputRender:
		return fmt.Sprintf("%d frames", int(in.Value))
	default:
		return fmt.Sprint(in.Value)
	}
}
