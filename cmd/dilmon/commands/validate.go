package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/internal/external/oracle"
	"github.com/hwahn/dilmon/internal/quality"
	"github.com/hwahn/dilmon/internal/store"
	"github.com/hwahn/dilmon/pkg/config"
	"github.com/hwahn/dilmon/pkg/database"
	"github.com/hwahn/dilmon/pkg/logger"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Audit stored fundamentals for outliers",
	Long: `Scans stored quarterly fundamentals with an IQR fence and
reports values that look like data errors. With --fix, each outlier
is routed through the correction oracle and confirmed corrections
are written back.

Example:
  go run ./cmd/dilmon validate --ticker ABCD
  go run ./cmd/dilmon validate --ticker ABCD --fix
  go run ./cmd/dilmon validate --fix --yes`,
	RunE: runValidate,
}

var (
	validateTicker string
	validateFix    bool
	validateYes    bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateTicker, "ticker", "", "audit a single ticker (default: all tracked)")
	validateCmd.Flags().BoolVar(&validateFix, "fix", false, "route outliers through the correction oracle")
	validateCmd.Flags().BoolVar(&validateYes, "yes", false, "skip the confirmation prompt")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Println("=== dilmon data audit ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if validateFix && cfg.Oracle.APIKey == "" {
		return fmt.Errorf("ORACLE_API_KEY is required for --fix")
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	securities := store.NewSecurityRepository(db.Pool)
	fundamentals := store.NewFundamentalsRepository(db.Pool)

	var targets []*contracts.Security
	if validateTicker != "" {
		sec, err := securities.GetByTicker(ctx, strings.ToUpper(validateTicker))
		if err != nil {
			return fmt.Errorf("look up %s: %w", validateTicker, err)
		}
		if sec == nil {
			return fmt.Errorf("unknown ticker %s", validateTicker)
		}
		targets = []*contracts.Security{sec}
	} else {
		targets, err = securities.ListByTiers(ctx, contracts.ActiveTiers)
		if err != nil {
			return fmt.Errorf("list tracked: %w", err)
		}
	}

	if validateFix && !validateYes {
		if !confirm(fmt.Sprintf("Run oracle corrections on %d securities?", len(targets))) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var correctionOracle quality.CorrectionOracle
	if c := oracle.NewClient(cfg.Oracle, log); c != nil {
		correctionOracle = c
	}
	validator := quality.NewValidator(correctionOracle, log)

	totalOutliers, totalCorrected := 0, 0
	for _, sec := range targets {
		history, err := fundamentals.ListBySecurity(ctx, sec.ID, 0)
		if err != nil {
			return fmt.Errorf("load history for %s: %w", sec.Ticker, err)
		}

		result, err := validator.AuditSecurity(ctx, sec.Ticker, history, fundamentals, validateFix)
		if err != nil {
			return fmt.Errorf("audit %s: %w", sec.Ticker, err)
		}

		for _, o := range result.Outliers {
			fmt.Printf("%-8s %s  %s = %.0f  (fence %.0f .. %.0f)\n",
				sec.Ticker, o.Row.FiscalPeriod, o.FieldLabel, o.Value, o.Lower, o.Upper)
		}
		totalOutliers += len(result.Outliers)
		totalCorrected += result.Corrected
	}

	fmt.Printf("\n%d securities audited, %d outliers", len(targets), totalOutliers)
	if validateFix {
		fmt.Printf(", %d corrected", totalCorrected)
	}
	fmt.Println()
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
