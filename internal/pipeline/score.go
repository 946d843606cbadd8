package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/internal/screen"
	"github.com/hwahn/dilmon/internal/scoring"
)

// scoreAndTier rescores every tracked security from stored data, then
// reassigns tiers against the run's score population. Price fetches
// are the only network access here and are skipped in score-only mode;
// a row without a fresh fetch carries the previous row's trailing
// return forward.
func (o *Orchestrator) scoreAndTier(ctx context.Context, mode Mode, result *Result) error {
	tracked, err := o.securities.ListByTiers(ctx, contracts.ActiveTiers)
	if err != nil {
		return fmt.Errorf("list tracked: %w", err)
	}

	freshPrices := mode != ModeScoreOnly
	now := time.Now()

	var candidates []scoring.TierCandidate
	for _, sec := range tracked {
		if err := ctx.Err(); err != nil {
			o.logger.Info("Run cancelled, stopping after committed work")
			return err
		}

		// The filters can start rejecting a name after promotion, e.g.
		// a ticker that picked up a preferred-share marker.
		if screen.ShouldExclude(sec.Ticker, sec.Name) {
			if err := o.excludeSecurity(ctx, sec); err != nil {
				o.logFailure(sec.Ticker, "exclude", err, result)
			}
			continue
		}

		if err := o.scoreSecurity(ctx, sec, now, freshPrices, &candidates); err != nil {
			o.logFailure(sec.Ticker, "score", err, result)
			continue
		}
		result.Scored++
	}

	if err := o.assignTiers(ctx, candidates, result); err != nil {
		return err
	}
	result.Top = topN(candidates, 10)
	return nil
}

// scoreSecurity computes and persists one score row.
func (o *Orchestrator) scoreSecurity(
	ctx context.Context,
	sec *contracts.Security,
	now time.Time,
	freshPrice bool,
	candidates *[]scoring.TierCandidate,
) error {
	quarters, err := o.fundamentals.ListBySecurity(ctx, sec.ID, scoreQuarters)
	if err != nil {
		return fmt.Errorf("load quarters: %w", err)
	}
	filings, err := o.filingRepo.ListBySecurity(ctx, sec.ID)
	if err != nil {
		return fmt.Errorf("load filings: %w", err)
	}

	score := o.engine.Score(scoring.Inputs{
		Ticker:    sec.Ticker,
		Quarters:  quarters,
		Filings:   filings,
		MarketCap: sec.MarketCap,
		Now:       now,
	})
	score.SecurityID = sec.ID
	score.ScoreDate = now

	// Carry the previous trailing return forward; the fresh fetch
	// below replaces it when the run has network access.
	prev, err := o.scores.LatestBySecurity(ctx, sec.ID)
	if err != nil {
		return fmt.Errorf("load previous score: %w", err)
	}
	if prev != nil {
		score.PriceChange12M = prev.PriceChange12M
	}

	if err := o.scores.Insert(ctx, score); err != nil {
		return fmt.Errorf("insert score: %w", err)
	}

	if freshPrice {
		change, err := o.market.GetTrailingReturn(ctx, sec.Ticker)
		if err != nil {
			// The score row is already committed; a failed price fetch
			// costs only the refresh.
			o.logger.WithError(err).WithField("ticker", sec.Ticker).Warn("Price fetch failed, keeping carried-forward return")
		} else if change != nil {
			if err := o.scores.UpdatePriceChange(ctx, score.ID, *change); err != nil {
				return fmt.Errorf("update price change: %w", err)
			}
		}
	}

	*candidates = append(*candidates, scoring.TierCandidate{
		SecurityID: sec.ID,
		Ticker:     sec.Ticker,
		Composite:  score.Composite,
	})
	return nil
}

// assignTiers recomputes percentile tiers over the run's scored
// population and persists the changes.
func (o *Orchestrator) assignTiers(ctx context.Context, candidates []scoring.TierCandidate, result *Result) error {
	tiers := scoring.AssignTiers(candidates, o.cfg.Tiering)

	counts := make(map[string]int, 3)
	for _, c := range candidates {
		tier := tiers[c.SecurityID]
		counts[tier]++
		if err := o.securities.UpdateTier(ctx, c.SecurityID, tier); err != nil {
			return fmt.Errorf("update tier for %s: %w", c.Ticker, err)
		}
	}

	result.TierCounts = counts
	if len(candidates) > 0 {
		o.logger.WithFields(map[string]interface{}{
			"critical":   counts[contracts.TierCritical],
			"watchlist":  counts[contracts.TierWatchlist],
			"monitoring": counts[contracts.TierMonitoring],
		}).Info("Tiers reassigned")
	}
	return nil
}
