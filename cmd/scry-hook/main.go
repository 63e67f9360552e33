// Package main is the scry-hook command. It serves the session API with its
// background pipeline and carries the operator commands for migrations,
// manual runs, admin skips and token minting.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
