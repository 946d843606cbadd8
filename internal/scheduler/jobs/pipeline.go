// Package jobs holds the scheduled job implementations.
package jobs

import (
	"context"
	"fmt"

	"github.com/hwahn/dilmon/internal/pipeline"
	"github.com/hwahn/dilmon/pkg/logger"
)

// PipelineJob runs a full pipeline pass nightly, after the filings
// registry has ingested the day's submissions.
type PipelineJob struct {
	orchestrator *pipeline.Orchestrator
	logger       *logger.Logger
}

// NewPipelineJob creates a new pipeline job.
func NewPipelineJob(orch *pipeline.Orchestrator, log *logger.Logger) *PipelineJob {
	return &PipelineJob{orchestrator: orch, logger: log}
}

// Name returns the job name.
func (j *PipelineJob) Name() string {
	return "dilution_pipeline"
}

// Schedule returns the cron schedule (every day at 5 AM, after the
// prior trading day's filings have settled).
func (j *PipelineJob) Schedule() string {
	return "0 0 5 * * *"
}

// Run executes a full pipeline pass.
func (j *PipelineJob) Run(ctx context.Context) error {
	result, err := j.orchestrator.Run(ctx, pipeline.Options{Mode: pipeline.ModeFull})
	if err != nil {
		return fmt.Errorf("scheduled pipeline run: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"scored": result.Scored,
		"failed": result.Failed,
	}).Info("Scheduled pipeline run finished")
	return nil
}
