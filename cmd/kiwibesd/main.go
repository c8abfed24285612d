// Package main provides the entry point for the kiwibesd CLI.
package main

import (
	"os"

	"github.com/kiwibes/kiwibesd/internal/cli"
	"github.com/kiwibes/kiwibesd/internal/kerrors"
)

func main() {
	if err := cli.Execute(); err != nil {
		if code, _, ok := kerrors.As(err); ok {
			os.Exit(int(code))
		}
		os.Exit(1)
	}
}
