// Command datapipe builds, preflights and executes filter pipelines.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/datapipe/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
