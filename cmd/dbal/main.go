// Package main provides the dbal command-line tool.
package main

import (
	"os"

	"github.com/leapstack-labs/dbal/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
