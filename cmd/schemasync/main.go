// Command schemasync reconciles CUE schema declarations with a remote
// content schema service.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/schemasync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "schemasync: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
