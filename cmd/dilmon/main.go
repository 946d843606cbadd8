package main

import (
	"os"

	"github.com/hwahn/dilmon/cmd/dilmon/commands"
)

// main is the entry point for the dilmon CLI.
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
