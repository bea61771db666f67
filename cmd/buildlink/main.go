// Package main is the entry point for the buildlink command.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dshills/buildlink/internal/cmd"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := cmd.NewRootCommand(os.Stdout, os.Stderr)
	root.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cmd.ExitCode(err)
	}
	return 0
}
