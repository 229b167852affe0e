// Package main is the entry point for the omnitutor server CLI.
//
// Usage:
//
//	omnitutor [flags] <command>
//
// Commands:
//
//	serve    - Run the tutoring gateway server
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/classtide/omnitutor/cmd/omnitutor/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
