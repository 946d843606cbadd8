package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/internal/store"
	"github.com/hwahn/dilmon/pkg/config"
	"github.com/hwahn/dilmon/pkg/database"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tier distribution and top scores",
	Long: `Prints the current tier distribution and the highest
composite scores.

Example:
  go run ./cmd/dilmon status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	securities := store.NewSecurityRepository(db.Pool)
	scores := store.NewScoreRepository(db.Pool)

	counts, err := securities.TierCounts(ctx)
	if err != nil {
		return fmt.Errorf("tier counts: %w", err)
	}

	fmt.Println("=== dilmon status ===")
	fmt.Println("\nTier distribution:")
	for _, tier := range []string{
		contracts.TierCritical, contracts.TierWatchlist,
		contracts.TierMonitoring, contracts.TierInactive,
	} {
		fmt.Printf("  %-11s %d\n", tier, counts[tier])
	}

	latest, err := scores.LatestAll(ctx)
	if err != nil {
		return fmt.Errorf("latest scores: %w", err)
	}
	if len(latest) == 0 {
		fmt.Println("\nNo scores yet.")
		return nil
	}
	if len(latest) > 10 {
		latest = latest[:10]
	}

	fmt.Println("\nTop dilution risk:")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tTICKER\tTIER\tCOMPOSITE\t12M RETURN")
	for i, s := range latest {
		sec, err := securities.GetByID(ctx, s.SecurityID)
		if err != nil || sec == nil {
			continue
		}
		ret := "n/a"
		if s.PriceChange12M != nil {
			ret = fmt.Sprintf("%+.1f%%", *s.PriceChange12M*100)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%s\n", i+1, sec.Ticker, sec.Tier, s.Composite, ret)
	}
	w.Flush()

	return nil
}
