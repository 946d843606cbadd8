// Package pipeline sequences the screening, enrichment, scoring and
// tiering stages across operating modes. Execution is single-threaded
// and commits per security, so an interrupted run loses at most one
// security's worth of work and can be resumed.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/internal/external/edgar"
	"github.com/hwahn/dilmon/internal/external/fmp"
	"github.com/hwahn/dilmon/internal/quality"
	"github.com/hwahn/dilmon/internal/scoring"
	"github.com/hwahn/dilmon/pkg/config"
	"github.com/hwahn/dilmon/pkg/logger"
)

// Mode selects which stages a run executes.
type Mode string

const (
	// ModeFull syncs the universe, screens, enriches, scores and tiers.
	ModeFull Mode = "full"
	// ModeResume skips securities already processed by an earlier
	// interrupted run and continues from where it stopped.
	ModeResume Mode = "resume"
	// ModeEnrichOnly skips screening and re-enriches already-known
	// securities before scoring.
	ModeEnrichOnly Mode = "enrich-only"
	// ModeScoreOnly rescores and retiers from stored data with no
	// network access at all.
	ModeScoreOnly Mode = "score-only"
)

// ParseMode validates a mode string from the CLI.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFull, ModeResume, ModeEnrichOnly, ModeScoreOnly:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown pipeline mode %q (want full, resume, enrich-only or score-only)", s)
}

// quickModeLimit caps the screened universe when --quick is set.
const quickModeLimit = 500

// quarters fetched per stage. The quick screen needs two years of
// share counts; enrichment stores three years for scoring.
const (
	screenQuarters = 8
	enrichQuarters = 12
	scoreQuarters  = 12
)

// Options control one pipeline run.
type Options struct {
	Mode          Mode
	MaxSecurities int // 0 = no cap
	Quick         bool
}

// Result summarizes one pipeline run.
type Result struct {
	Mode       Mode
	Screened   int
	Candidates int
	Enriched   int
	Scored     int
	Failed     int
	Duration   time.Duration

	// Top securities by composite, descending, at most 10.
	Top []scoring.TierCandidate

	TierCounts map[string]int
}

// Orchestrator owns the clients and repositories one run needs. The
// market and filings clients may be nil in score-only mode.
type Orchestrator struct {
	cfg    *config.Config
	logger *logger.Logger

	market  *fmp.Client
	filings *edgar.Client

	validator *quality.Validator
	engine    *scoring.Engine

	securities   contracts.SecurityRepository
	fundamentals contracts.FundamentalsRepository
	filingRepo   contracts.FilingRepository
	scores       contracts.ScoreRepository
}

// New wires an orchestrator.
func New(
	cfg *config.Config,
	log *logger.Logger,
	market *fmp.Client,
	filings *edgar.Client,
	validator *quality.Validator,
	engine *scoring.Engine,
	securities contracts.SecurityRepository,
	fundamentals contracts.FundamentalsRepository,
	filingRepo contracts.FilingRepository,
	scores contracts.ScoreRepository,
) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		logger:       log,
		market:       market,
		filings:      filings,
		validator:    validator,
		engine:       engine,
		securities:   securities,
		fundamentals: fundamentals,
		filingRepo:   filingRepo,
		scores:       scores,
	}
}

// Run executes one pipeline run. Per-security failures are logged and
// counted, not fatal; only infrastructure failures (database down,
// universe fetch failed) abort the run. Context cancellation between
// securities stops the run cleanly.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	result := &Result{Mode: opts.Mode}

	o.logger.WithFields(map[string]interface{}{
		"mode":  string(opts.Mode),
		"max":   opts.MaxSecurities,
		"quick": opts.Quick,
	}).Info("Pipeline run starting")

	switch opts.Mode {
	case ModeFull, ModeResume:
		if opts.Mode == ModeFull {
			if err := o.syncUniverse(ctx); err != nil {
				return result, err
			}
		}
		if err := o.screenAndEnrich(ctx, opts, result); err != nil {
			return result, err
		}
	case ModeEnrichOnly:
		if err := o.enrichKnown(ctx, result); err != nil {
			return result, err
		}
	case ModeScoreOnly:
		// straight to scoring
	default:
		return result, fmt.Errorf("unknown pipeline mode %q", opts.Mode)
	}

	if err := o.scoreAndTier(ctx, opts.Mode, result); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	o.logger.WithFields(map[string]interface{}{
		"screened":   result.Screened,
		"candidates": result.Candidates,
		"enriched":   result.Enriched,
		"scored":     result.Scored,
		"failed":     result.Failed,
		"duration":   result.Duration.Round(time.Second).String(),
	}).Info("Pipeline run finished")

	return result, nil
}

// topN keeps the descending head of the run's scored population.
func topN(candidates []scoring.TierCandidate, n int) []scoring.TierCandidate {
	sorted := append([]scoring.TierCandidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Composite > sorted[j].Composite })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
