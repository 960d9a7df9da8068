// Command provreplay fingerprints computation requests and manages the
// provenance archives that replay them.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/provreplay/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
