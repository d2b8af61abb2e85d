package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/enginesim/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string
	Update bool
}

// ScenarioReport is the outcome of one scenario.
type ScenarioReport struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden"` // "match", "mismatch", "updated" or "none"
	Errors []string `json:"errors,omitempty"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run YAML scenarios against the simulator",
		Long: `Run every *.yaml scenario in a directory.

Each scenario drives a fresh simulator through its steps, checks its
expectations and assertions, and verifies that a replay of the session
reproduces every snapshot. When <dir>/golden/<name>.golden exists the
step trace is compared against it; --update rewrites the golden files.

Examples:
  enginesim test ./testdata/scenarios
  enginesim test ./testdata/scenarios --filter crank --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose name contains this string")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "write golden traces instead of comparing them")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid scenario directory", err)
	}
	if len(files) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenarios found in %s", dir))
	}

	reports := []ScenarioReport{}
	failed := 0
	for _, file := range files {
		sc, err := harness.LoadScenario(file)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("load %s", file), err)
		}
		if opts.Filter != "" && !strings.Contains(sc.Name, opts.Filter) {
			continue
		}

		report, err := runScenario(sc, file, filepath.Join(dir, "golden"), opts.Update)
		if err != nil {
			return err
		}
		if !report.Pass {
			failed++
		}
		reports = append(reports, report)

		status := "PASS"
		if !report.Pass {
			status = "FAIL"
		}
		formatter.Printf("%s %s (golden: %s)\n", status, report.Name, report.Golden)
		for _, e := range report.Errors {
			formatter.Printf("    %s\n", e)
		}
	}

	if formatter.IsJSON() {
		if err := formatter.Success(reports); err != nil {
			return err
		}
	} else {
		formatter.Printf("%d passed, %d failed\n", len(reports)-failed, failed)
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenarios failed", failed))
	}
	return nil
}

func runScenario(sc *harness.Scenario, file, goldenDir string, update bool) (ScenarioReport, error) {
	report := ScenarioReport{Name: sc.Name, File: file, Golden: "none"}

	result, err := harness.Run(sc, harness.WithLogger(slog.Default()))
	if err != nil {
		return report, WrapExitError(ExitCommandError, fmt.Sprintf("run %s", sc.Name), err)
	}
	report.Pass = result.Pass
	report.Errors = result.Errors

	trace := harness.FormatTrace(sc.Name, result.Trace)
	path := filepath.Join(goldenDir, sc.Name+".golden")

	if update {
		if err := os.MkdirAll(goldenDir, 0o755); err != nil {
			return report, WrapExitError(ExitCommandError, "failed to create golden directory", err)
		}
		if err := os.WriteFile(path, trace, 0o644); err != nil {
			return report, WrapExitError(ExitCommandError, "failed to write golden file", err)
		}
		report.Golden = "updated"
		return report, nil
	}

	want, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return report, nil
	case err != nil:
		return report, WrapExitError(ExitCommandError, "failed to read golden file", err)
	}
	if bytes.Equal(want, trace) {
		report.Golden = "match"
		return report, nil
	}
	report.Golden = "mismatch"
	report.Pass = false
	report.Errors = append(report.Errors, fmt.Sprintf("trace differs from %s", path))
	return report, nil
}
