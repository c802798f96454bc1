// Package main is the entry point for the tickwatch daemon and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/firestige/tickwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
