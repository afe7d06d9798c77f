// Package main provides the entry point for the TagForge CLI.
package main

import (
	"fmt"
	"os"

	"github.com/tagforge/tagforge/cmd/tagforge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
