// Command enginesim validates, compiles and runs engine topology scripts.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/enginesim/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
