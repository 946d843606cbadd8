package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/pkg/config"
)

func testTiering() config.Tiering {
	return config.Tiering{CriticalPercentile: 90, WatchlistPercentile: 70}
}

func TestAssignTiers_Empty(t *testing.T) {
	tiers := AssignTiers(nil, testTiering())
	assert.Empty(t, tiers)
}

func TestAssignTiers_Percentiles(t *testing.T) {
	// Composites 10, 20, ..., 100. 90th percentile cut = sorted[9] =
	// 100, 70th = sorted[7] = 80.
	var candidates []TierCandidate
	for i := 1; i <= 10; i++ {
		candidates = append(candidates, TierCandidate{
			SecurityID: int64(i),
			Composite:  float64(i * 10),
		})
	}

	tiers := AssignTiers(candidates, testTiering())

	assert.Equal(t, contracts.TierCritical, tiers[10])
	assert.Equal(t, contracts.TierWatchlist, tiers[9])
	assert.Equal(t, contracts.TierWatchlist, tiers[8])
	assert.Equal(t, contracts.TierMonitoring, tiers[7])
	assert.Equal(t, contracts.TierMonitoring, tiers[1])
}

func TestAssignTiers_SingleCandidate(t *testing.T) {
	tiers := AssignTiers([]TierCandidate{{SecurityID: 1, Composite: 50}}, testTiering())

	// A population of one sits at every percentile of itself.
	assert.Equal(t, contracts.TierCritical, tiers[1])
}

func TestAssignTiers_RankSplitsTies(t *testing.T) {
	// Ten identical composites still carve out 1 critical and 2
	// watchlist: tiers are a fixed share of ranks, not a value
	// threshold, so a flat population cannot all be critical.
	var candidates []TierCandidate
	for i := 1; i <= 10; i++ {
		candidates = append(candidates, TierCandidate{SecurityID: int64(i)})
	}

	tiers := AssignTiers(candidates, testTiering())

	counts := map[string]int{}
	for _, tier := range tiers {
		counts[tier]++
	}
	assert.Equal(t, 1, counts[contracts.TierCritical])
	assert.Equal(t, 2, counts[contracts.TierWatchlist])
	assert.Equal(t, 7, counts[contracts.TierMonitoring])
}

func TestAssignTiers_PopulationRelative(t *testing.T) {
	// Low absolute scores still produce a critical tier: tiers rank
	// within the run's population, not against fixed thresholds.
	candidates := []TierCandidate{
		{SecurityID: 1, Composite: 1},
		{SecurityID: 2, Composite: 2},
		{SecurityID: 3, Composite: 3},
		{SecurityID: 4, Composite: 4},
		{SecurityID: 5, Composite: 5},
		{SecurityID: 6, Composite: 6},
		{SecurityID: 7, Composite: 7},
		{SecurityID: 8, Composite: 8},
		{SecurityID: 9, Composite: 9},
		{SecurityID: 10, Composite: 10},
	}

	tiers := AssignTiers(candidates, testTiering())
	assert.Equal(t, contracts.TierCritical, tiers[10])
	assert.Equal(t, contracts.TierMonitoring, tiers[1])
}
