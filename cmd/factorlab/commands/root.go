package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "factorlab",
	Short: "FactorLab - securities factor scoring engine",
	Long: `FactorLab Unified CLI

Factor scoring for a securities universe: normalize raw signals into
comparable 0-100 scores, aggregate them into weighted block scores,
assign quintile ranks, and keep every run reproducible through
configuration versioning and an append-only audit trail.

Usage:
  go run ./cmd/factorlab [command]

Examples:
  go run ./cmd/factorlab score --from 2026-01-05 --to 2026-01-09
  go run ./cmd/factorlab validate --date 2026-01-09
  go run ./cmd/factorlab versions list
  go run ./cmd/factorlab api`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}
