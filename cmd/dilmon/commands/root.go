package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dilmon",
	Short: "dilmon - shareholder dilution screening and scoring",
	Long: `dilmon screens a public-equity universe for dilution risk,
enriches candidates with fundamentals and regulatory filings, and
maintains composite dilution scores with percentile-based tracking
tiers.

Usage:
  go run ./cmd/dilmon [command]

Examples:
  go run ./cmd/dilmon pipeline --mode full
  go run ./cmd/dilmon pipeline --mode resume --max-securities 1000
  go run ./cmd/dilmon validate --ticker ABCD --fix
  go run ./cmd/dilmon api
  go run ./cmd/dilmon status`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
