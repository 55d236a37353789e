// Package main provides the daxport CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/daxport/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
