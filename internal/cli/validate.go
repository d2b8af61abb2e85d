package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Config string
}

// ValidateResult is the JSON payload of a successful validation.
type ValidateResult struct {
	Name      string `json:"name"`
	Cylinders int    `json:"cylinders"`
	Exhausts  int    `json:"exhausts"`
	Config    string `json:"config,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <script.cue|dir>",
		Short: "Check a topology script and report every error",
		Long: `Compile a topology script and check it against the semantic rules,
reporting every problem with its source position.

A directory argument is loaded as one CUE package, so a topology may be
split across files.

Exit codes:
  0 - Script (and config, if given) is valid
  1 - Script or config is invalid
  2 - Command error (missing file, etc.)

Examples:
  enginesim validate ./engines/inline4.cue
  enginesim validate ./engines/v8 --config sim.yaml
  enginesim validate ./engines/inline4.cue --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "also validate a YAML simulator config")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Config != "" {
		if _, err := loadConfig(opts.Config); err != nil {
			_ = formatter.Error("INVALID_CONFIG", err.Error(), nil)
			return WrapExitError(ExitFailure, "config is invalid", err)
		}
		formatter.VerboseLog("config ok: %s", opts.Config)
	}

	topo, err := loadScript(path)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		problems := scriptErrors(err)
		if formatter.IsJSON() {
			_ = formatter.Error("INVALID_SCRIPT", "script is invalid", problems)
		} else {
			for _, p := range problems {
				formatter.Printf("%s\n", p)
			}
		}
		return NewExitError(ExitFailure, "script is invalid")
	}

	result := ValidateResult{
		Name:      topo.Name,
		Cylinders: len(topo.Cylinders),
		Exhausts:  len(topo.Exhaust),
		Config:    opts.Config,
	}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	formatter.Printf("%s: ok (%d cylinders, %d exhausts)\n", result.Name, result.Cylinders, result.Exhausts)
	return nil
}
