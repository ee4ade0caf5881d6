// Package main is the entry point for the reportql binary.
package main

import (
	"os"

	"reportql/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
