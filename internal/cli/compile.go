package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/enginesim/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string
}

// CompiledTopology is the compile command's output document.
type CompiledTopology struct {
	Hash      string       `json:"hash"`
	IRVersion string       `json:"ir_version"`
	Topology  *ir.Topology `json:"topology"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <script.cue|dir>",
		Short: "Compile a topology script to JSON",
		Long: `Compile a topology script and print the resolved topology as JSON,
with every default filled in and firing offsets computed.

The hash identifies the compiled topology: two scripts that compile to the
same engine share it.

Examples:
  enginesim compile ./engines/inline4.cue
  enginesim compile ./engines/v8 -o v8.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write JSON to a file instead of stdout")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	topo, err := loadScript(path)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return WrapExitError(ExitFailure, "compile failed", err)
	}

	hash, err := topo.Hash()
	if err != nil {
		return WrapExitError(ExitFailure, "compile failed", err)
	}
	doc := CompiledTopology{Hash: hash, IRVersion: ir.IRVersion, Topology: topo}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal topology: %w", err)
	}
	data = append(data, '\n')

	if opts.Output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	newFormatter(opts.RootOptions, cmd).VerboseLog("wrote %s (%s)", opts.Output, hash[:12])
	return nil
}
