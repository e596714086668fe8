// cmd/cdm/main.go
//
// This is the entry point for the cdm CLI.
// When you run `cdm` from a project directory, this is what executes.
// The command tree lives in internal/cli.

package main

import (
	"fmt"
	"os"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
