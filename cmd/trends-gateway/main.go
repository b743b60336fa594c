// Package main is the entry point of the trends-gateway executable.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "trends-gateway: %v\n", err)
		os.Exit(1)
	}
}
