package scoring

import (
	"sort"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/pkg/config"
)

// TierCandidate is one tracked security's latest composite, the input
// to tier assignment.
type TierCandidate struct {
	SecurityID int64
	Ticker     string
	Composite  float64
}

// AssignTiers maps each candidate to a monitoring tier by its rank in
// the run's population: the top (100-critical)% of ranks are critical,
// the next band watchlist, the rest monitoring. Tiers are relative,
// not absolute: the point is to surface the worst names in the current
// universe, whatever the overall level of scores.
func AssignTiers(candidates []TierCandidate, cfg config.Tiering) map[int64]string {
	n := len(candidates)
	tiers := make(map[int64]string, n)
	if n == 0 {
		return tiers
	}

	ranked := append([]TierCandidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Composite < ranked[j].Composite
	})

	criticalIdx := cutIndex(n, cfg.CriticalPercentile)
	watchlistIdx := cutIndex(n, cfg.WatchlistPercentile)

	for i, c := range ranked {
		switch {
		case i >= criticalIdx:
			tiers[c.SecurityID] = contracts.TierCritical
		case i >= watchlistIdx:
			tiers[c.SecurityID] = contracts.TierWatchlist
		default:
			tiers[c.SecurityID] = contracts.TierMonitoring
		}
	}

	return tiers
}

// cutIndex is the first ascending rank inside a percentile band,
// nearest-rank method.
func cutIndex(n int, pct float64) int {
	idx := int(float64(n) * pct / 100)
	if idx >= n {
		idx = n - 1
	}
	return idx
}
