// Package main provides the entry point for the mcpscope CLI.
package main

import (
	"fmt"
	"os"

	"github.com/mcpscope/mcpscope/cmd/mcpscope/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
