package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hwahn/dilmon/internal/api"
	"github.com/hwahn/dilmon/internal/api/handlers"
	"github.com/hwahn/dilmon/internal/store"
	"github.com/hwahn/dilmon/pkg/config"
	"github.com/hwahn/dilmon/pkg/database"
	"github.com/hwahn/dilmon/pkg/logger"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the read-only query API server",
	Long: `Starts the HTTP query API over stored scores and filings.

Endpoints:
  GET /health                            - Health check
  GET /api/securities/{ticker}/score     - Latest score
  GET /api/securities/{ticker}/scores    - Score history
  GET /api/securities/{ticker}/filings   - Filing history
  GET /api/scores/latest                 - Latest score per security

Example:
  go run ./cmd/dilmon api
  go run ./cmd/dilmon api --port 8090`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== dilmon API server ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if apiPort != "" {
		cfg.Port = apiPort
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

	scoreHandler := handlers.NewScoreHandler(
		store.NewSecurityRepository(db.Pool),
		store.NewScoreRepository(db.Pool),
		store.NewFilingRepository(db.Pool),
		log,
	)
	server := api.New(cfg, log, api.NewRouter(scoreHandler, log))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
