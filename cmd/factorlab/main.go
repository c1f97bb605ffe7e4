package main

import (
	"os"

	"github.com/arcresearch/factorlab/cmd/factorlab/commands"
)

// main is the entry point for the FactorLab CLI: go run ./cmd/factorlab [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
