package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/enginesim/internal/ir"
	"github.com/roach88/enginesim/internal/sim"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the simulator version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			if formatter.IsJSON() {
				return formatter.Success(map[string]string{
					"engine": ir.EngineVersion,
					"ir":     ir.IRVersion,
				})
			}
			formatter.Printf("%s\n", sim.Version())
			return nil
		},
	}
}
