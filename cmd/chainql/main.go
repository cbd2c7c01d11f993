// Package main is the entry point for the chainql CLI binary.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/chainql/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
