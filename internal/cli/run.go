package cli

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/enginesim/internal/compiler"
	"github.com/roach88/enginesim/internal/ir"
	"github.com/roach88/enginesim/internal/sim"
	"github.com/roach88/enginesim/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config        string
	Seconds       float64
	Step          float64
	Throttle      float64
	Ignition      bool
	Starter       bool
	Database      string
	Output        string
	SnapshotEvery int

	// IDGenerator allows overriding the session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator store.IDGenerator
}

// RunResult is the run command's summary.
type RunResult struct {
	SessionID string           `json:"session_id,omitempty"`
	Topology  string           `json:"topology"`
	Advances  int              `json:"advances"`
	Frames    int              `json:"frames"`
	Stats     ir.StatsSnapshot `json:"stats"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script.cue|dir>",
		Short: "Simulate an engine and render its audio",
		Long: `Load a topology script, drive the simulator for a fixed span of
simulated time and render the audio it produces.

Audio is written to --out as raw interleaved little-endian float32 PCM at
the configured sample rate. With --db every control input and a periodic
stats snapshot are recorded to SQLite, so the session can be replayed.

Examples:
  enginesim run ./engines/inline4.cue --seconds 5 --throttle 0.4 --out idle.f32
  enginesim run ./engines/inline4.cue --db sessions.db
  enginesim run ./engines/v8 --config sim.yaml --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "YAML simulator config (defaults if omitted)")
	cmd.Flags().Float64Var(&opts.Seconds, "seconds", 2, "simulated seconds to run")
	cmd.Flags().Float64Var(&opts.Step, "step", 1.0/60, "seconds per Advance call")
	cmd.Flags().Float64Var(&opts.Throttle, "throttle", 0.2, "throttle position in [0,1]")
	cmd.Flags().BoolVar(&opts.Ignition, "ignition", true, "ignition switch")
	cmd.Flags().BoolVar(&opts.Starter, "starter", true, "engage the starter motor")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the session to this SQLite database")
	cmd.Flags().StringVar(&opts.Output, "out", "", "write float32 PCM audio to this file")
	cmd.Flags().IntVar(&opts.SnapshotEvery, "snapshot-every", store.DefaultSnapshotEvery, "advances between recorded snapshots")

	return cmd
}

// driver is the control surface shared by a live simulator and a
// recording one.
type driver interface {
	LoadTopology(ctx context.Context, source string) error
	SetThrottle(ctx context.Context, v float64) error
	SetIgnition(ctx context.Context, on bool) error
	SetStarter(ctx context.Context, on bool) error
	Advance(ctx context.Context, dt float64) error
	Render(ctx context.Context, out []float32, frames int) (int, error)
	Close(ctx context.Context) error
}

// liveDriver drives a simulator without recording.
type liveDriver struct{ s *sim.Simulator }

func (d liveDriver) LoadTopology(_ context.Context, source string) error {
	return d.s.LoadTopology(source)
}
func (d liveDriver) SetThrottle(_ context.Context, v float64) error { return d.s.SetThrottle(v) }
func (d liveDriver) SetIgnition(_ context.Context, on bool) error { d.s.SetIgnition(on); return nil }
func (d liveDriver) SetStarter(_ context.Context, on bool) error { d.s.SetStarter(on); return nil }
func (d liveDriver) Advance(_ context.Context, dt float64) error { return d.s.Advance(dt) }
func (d liveDriver) Render(_ context.Context, out []float32, frames int) (int, error) {
	return d.s.Render(out, frames), nil
}
func (d liveDriver) Close(context.Context) error { return nil }

func runSimulation(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Seconds <= 0 || math.IsInf(opts.Seconds, 0) || math.IsNaN(opts.Seconds) {
		return NewExitError(ExitCommandError, "--seconds must be positive")
	}
	if opts.Step <= 0 || math.IsInf(opts.Step, 0) || math.IsNaN(opts.Step) {
		return NewExitError(ExitCommandError, "--step must be positive")
	}

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}

	source, loader, err := scriptSource(path)
	if err != nil {
		return err
	}
	if opts.Database != "" && loader != nil {
		return NewExitError(ExitCommandError, "recording requires a single script file, not a directory")
	}
	if loader == nil {
		loader = compiler.NewCUELoader(compiler.WithFilename(path))
	}

	reg := sim.NewRegistry(sim.WithLogger(slog.Default()), sim.WithLoader(loader))
	h, err := reg.Create(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create simulator", err)
	}
	defer reg.Destroy(h)
	s, err := reg.Simulator(h)
	if err != nil {
		return err
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		d         driver = liveDriver{s}
		sessionID string
	)
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()

		ids := opts.IDGenerator
		if ids == nil {
			ids = store.UUIDv7Generator{}
		}
		rec, err := store.NewRecorder(ctx, st, s, ids, store.WithSnapshotEvery(opts.SnapshotEvery))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start recording", err)
		}
		d = rec
		sessionID = rec.SessionID()
		slog.Info("recording session", "session", sessionID, "db", opts.Database)
	}

	if err := d.LoadTopology(ctx, source); err != nil {
		if problems := scriptErrors(err); len(problems) > 0 && !formatter.IsJSON() {
			for _, p := range problems {
				formatter.Printf("%s\n", p)
			}
		}
		return WrapExitError(ExitFailure, "failed to load script", err)
	}
	if err := d.SetIgnition(ctx, opts.Ignition); err != nil {
		return err
	}
	if err := d.SetStarter(ctx, opts.Starter); err != nil {
		return err
	}
	if err := d.SetThrottle(ctx, opts.Throttle); err != nil {
		return WrapExitError(ExitCommandError, "invalid throttle", err)
	}

	var (
		pcm *bufio.Writer
		w   io.Writer
	)
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output", err)
		}
		defer f.Close()
		pcm = bufio.NewWriter(f)
		w = pcm
	}

	result := RunResult{Topology: s.Topology().Name, SessionID: sessionID}
	result.Advances, result.Frames, err = drive(ctx, d, s, opts, w)
	if err != nil {
		return err
	}
	if pcm != nil {
		if err := pcm.Flush(); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
	}
	if err := d.Close(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to finish recording", err)
	}

	if result.Stats, err = s.Stats(); err != nil {
		return err
	}
	result.Stats.ProcessingTimeMs = 0

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	if sessionID != "" {
		formatter.Printf("session %s\n", sessionID)
	}
	formatter.Printf("%s: %.2f s simulated, %d frames rendered\n", result.Topology, result.Stats.SimulatedTime, result.Frames)
	formatter.Printf("  rpm %.1f  load %.0f%%  manifold %.0f Pa  underruns %d  overflows %d\n",
		result.Stats.RPM, result.Stats.Load*100, result.Stats.ManifoldPressure,
		result.Stats.Underruns, result.Stats.Overflows)
	return nil
}

// drive advances the simulator in fixed steps and renders the audio each
// step produced. Fractional frames carry over between steps. It stops
// early, without error, when ctx is canceled.
func drive(ctx context.Context, d driver, s *sim.Simulator, opts *RunOptions, pcm io.Writer) (advances, frames int, err error) {
	cfg := s.Config()
	channels := cfg.OutputChannels()
	steps := int(math.Ceil(opts.Seconds/opts.Step - 1e-6))
	out := make([]float32, (int(opts.Step*float64(cfg.SampleRate))+1)*channels)

	var carry float64
	for i := 0; i < steps; i++ {
		if ctx.Err() != nil {
			slog.Info("interrupted", "advances", advances)
			return advances, frames, nil
		}
		if err := d.Advance(ctx, opts.Step); err != nil {
			return advances, frames, WrapExitError(ExitFailure, "advance failed", err)
		}
		advances++

		carry += opts.Step * float64(cfg.SampleRate)
		n := int(carry)
		carry -= float64(n)
		if _, err := d.Render(ctx, out[:n*channels], n); err != nil {
			return advances, frames, WrapExitError(ExitCommandError, "render failed", err)
		}
		frames += n

		if pcm != nil {
			if err := binary.Write(pcm, binary.LittleEndian, out[:n*channels]); err != nil {
				return advances, frames, WrapExitError(ExitCommandError, "failed to write output", err)
			}
		}
	}
	return advances, frames, nil
}

// scriptSource returns the script text for a file. For a directory it
// returns the path as the source and a loader that builds the package.
func scriptSource(path string) (string, sim.TopologyLoader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, WrapExitError(ExitCommandError, "script not found", err)
	}
	if info.IsDir() {
		loader := sim.LoaderFunc(func(string) (*ir.Topology, error) {
			return compiler.LoadDir(path)
		})
		return path, loader, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, WrapExitError(ExitCommandError, "failed to read script", err)
	}
	return string(data), nil, nil
}
