package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hwahn/dilmon/internal/external/edgar"
	"github.com/hwahn/dilmon/internal/external/fmp"
	"github.com/hwahn/dilmon/internal/external/oracle"
	"github.com/hwahn/dilmon/internal/pipeline"
	"github.com/hwahn/dilmon/internal/quality"
	"github.com/hwahn/dilmon/internal/scoring"
	"github.com/hwahn/dilmon/internal/store"
	"github.com/hwahn/dilmon/pkg/config"
	"github.com/hwahn/dilmon/pkg/database"
	"github.com/hwahn/dilmon/pkg/logger"
)

// pipelineCmd represents the pipeline command
var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the dilution screening pipeline",
	Long: `Runs the screening, enrichment, scoring and tiering pipeline.

Modes:
  full        sync universe, screen, enrich, score, tier
  resume      continue an interrupted run from where it stopped
  enrich-only refresh fundamentals and filings for known securities
  score-only  rescore and retier from stored data, no network

Example:
  go run ./cmd/dilmon pipeline --mode full
  go run ./cmd/dilmon pipeline --mode resume --max-securities 1000
  go run ./cmd/dilmon pipeline --mode full --quick`,
	RunE: runPipeline,
}

var (
	pipelineMode  string
	pipelineMax   int
	pipelineQuick bool
)

func init() {
	rootCmd.AddCommand(pipelineCmd)

	pipelineCmd.Flags().StringVar(&pipelineMode, "mode", "full", "pipeline mode (full|resume|enrich-only|score-only)")
	pipelineCmd.Flags().IntVar(&pipelineMax, "max-securities", 0, "cap on screened securities (0 = no cap)")
	pipelineCmd.Flags().BoolVar(&pipelineQuick, "quick", false, "quick run, screen at most 500 securities")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	fmt.Println("=== dilmon pipeline ===")

	mode, err := pipeline.ParseMode(pipelineMode)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForPipeline(pipelineMode); err != nil {
		return err
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	// Interrupt stops the run between securities; committed work stays.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.EnsureSchema(ctx, db.Pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	orch := buildOrchestrator(cfg, log, db, mode)

	result, err := orch.Run(ctx, pipeline.Options{
		Mode:          mode,
		MaxSecurities: pipelineMax,
		Quick:         pipelineQuick,
	})
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	printRunSummary(result)
	return nil
}

// buildOrchestrator wires the pipeline's clients and repositories.
// Score-only mode gets no network clients at all.
func buildOrchestrator(cfg *config.Config, log *logger.Logger, db *database.DB, mode pipeline.Mode) *pipeline.Orchestrator {
	var market *fmp.Client
	var filings *edgar.Client
	if mode != pipeline.ModeScoreOnly {
		market = fmp.NewClient(cfg.MarketData, log)
		filings = edgar.NewClient(cfg.Filings, log)
	}

	// nil when no oracle key is configured; suspect values are then
	// discarded instead of corrected.
	var correctionOracle quality.CorrectionOracle
	if c := oracle.NewClient(cfg.Oracle, log); c != nil {
		correctionOracle = c
	}

	return pipeline.New(
		cfg,
		log,
		market,
		filings,
		quality.NewValidator(correctionOracle, log),
		scoring.NewEngine(cfg.Scoring, log),
		store.NewSecurityRepository(db.Pool),
		store.NewFundamentalsRepository(db.Pool),
		store.NewFilingRepository(db.Pool),
		store.NewScoreRepository(db.Pool),
	)
}

func printRunSummary(result *pipeline.Result) {
	fmt.Printf("\nMode: %s  screened=%d candidates=%d enriched=%d scored=%d failed=%d (%s)\n",
		result.Mode, result.Screened, result.Candidates, result.Enriched,
		result.Scored, result.Failed, result.Duration.Round(1e9))

	if len(result.Top) == 0 {
		return
	}

	fmt.Println("\nTop dilution risk:")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tTICKER\tCOMPOSITE")
	for i, c := range result.Top {
		fmt.Fprintf(w, "%d\t%s\t%.2f\n", i+1, c.Ticker, c.Composite)
	}
	w.Flush()
}
