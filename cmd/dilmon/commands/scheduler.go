package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hwahn/dilmon/internal/pipeline"
	"github.com/hwahn/dilmon/internal/scheduler"
	"github.com/hwahn/dilmon/internal/scheduler/jobs"
	"github.com/hwahn/dilmon/internal/store"
	"github.com/hwahn/dilmon/pkg/config"
	"github.com/hwahn/dilmon/pkg/database"
	"github.com/hwahn/dilmon/pkg/logger"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the pipeline on a schedule",
	Long: `Starts the scheduler, which runs a full pipeline pass every
day at 5 AM. Runs until interrupted.

Example:
  go run ./cmd/dilmon scheduler`,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== dilmon scheduler ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForPipeline(string(pipeline.ModeFull)); err != nil {
		return err
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := store.EnsureSchema(context.Background(), db.Pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	orch := buildOrchestrator(cfg, log, db, pipeline.ModeFull)

	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewPipelineJob(orch, log)); err != nil {
		return fmt.Errorf("add pipeline job: %w", err)
	}

	sched.Start()
	defer sched.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("Shutting down scheduler")

	return nil
}
