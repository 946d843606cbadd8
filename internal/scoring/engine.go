// Package scoring computes the six dilution sub-scores, the weighted
// composite, and the percentile tier assignment.
package scoring

import (
	"math"
	"time"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/pkg/config"
	"github.com/hwahn/dilmon/pkg/logger"
)

// Engine computes dilution risk scores. It is pure over its inputs:
// it never raises on missing data, it degrades to null sub-scores and
// a composite of 0.
type Engine struct {
	cfg    config.Scoring
	logger *logger.Logger
}

// NewEngine creates a scoring engine.
func NewEngine(cfg config.Scoring, log *logger.Logger) *Engine {
	return &Engine{cfg: cfg, logger: log}
}

// Inputs is everything one scoring pass needs. Quarters are the
// stored history ordered oldest to newest, at most the 12 most
// recent; Filings is the full stored filing history.
type Inputs struct {
	Ticker    string
	Quarters  []*contracts.QuarterlyFundamentals
	Filings   []*contracts.Filing
	MarketCap float64
	Now       time.Time
}

// Score computes all sub-scores and the composite for one security.
// The returned row has no SecurityID/ScoreDate/PriceChange12M; the
// caller owns persistence concerns.
func (e *Engine) Score(in Inputs) *contracts.DilutionScore {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	s := &contracts.DilutionScore{}

	// 1. Share growth
	shareCAGR := e.shareCAGR(in.Quarters)
	s.ShareCAGR3Y = shareCAGR
	if shareCAGR != nil {
		s.ShareCAGRScore = ptr(clampScore(*shareCAGR / e.cfg.ShareCAGRCeiling * 100))
	}

	// 2. Cash burn
	s.FCFBurnScore, s.FCFBurnRate = e.burnScore(in.Quarters, in.MarketCap)

	// 3. SBC over revenue
	s.SBCRevenueScore, s.SBCRevenuePct = e.sbcRevenueScore(in.Quarters)

	// 4. Offering frequency
	count := e.offeringCount(in.Filings, now)
	s.OfferingCount3Y = &count
	s.OfferingFreqScore = ptr(clampScore(float64(count) / float64(e.cfg.OfferingFreqCeiling) * 100))

	// 5. Cash runway
	s.CashRunwayScore, s.CashRunwayMonths = e.runwayScore(in.Quarters)

	// 6. ATM shelf decay
	atmScore, atmActive := e.atmScore(in.Filings, now)
	s.ATMActiveScore = ptr(atmScore)
	s.ATMProgramActive = atmActive

	s.Composite = round2(e.composite(s))

	roundScores(s)

	e.logger.WithFields(map[string]interface{}{
		"ticker":    in.Ticker,
		"composite": s.Composite,
	}).Debug("Scored security")

	return s
}

// shareCAGR is the annualized growth rate of the diluted share count
// between the oldest and newest quarter with a positive count.
// Negative growth (buybacks) is clipped to 0: only dilution is scored.
func (e *Engine) shareCAGR(quarters []*contracts.QuarterlyFundamentals) *float64 {
	var shares []float64
	for _, q := range quarters {
		if q.SharesDiluted != nil && *q.SharesDiluted > 0 {
			shares = append(shares, *q.SharesDiluted)
		}
	}
	if len(shares) < 2 {
		return nil
	}

	oldest := shares[0]
	newest := shares[len(shares)-1]
	numQuarters := float64(len(shares) - 1)

	cagr := math.Pow(newest/oldest, 4/numQuarters) - 1
	if cagr < 0 {
		cagr = 0
	}
	return &cagr
}

// burnScore scores the annualized average negative-FCF of the
// trailing 4 quarters against market cap. No negative quarter means
// the security is not burning: score 0, not null. A missing market
// cap makes the metric uncomputable: null.
func (e *Engine) burnScore(quarters []*contracts.QuarterlyFundamentals, marketCap float64) (*float64, *float64) {
	if marketCap <= 0 {
		return nil, nil
	}

	negFCF := negativeFCF(trailing(quarters, 4))
	if len(negFCF) == 0 {
		return ptr(0.0), nil
	}

	negFCF = e.removeOutliers(negFCF, "fcf_burn")
	avgQuarterlyBurn := mean(negFCF)
	burnRate := avgQuarterlyBurn * 4 / marketCap // negative

	score := clampScore(math.Abs(burnRate) / e.cfg.FCFBurnCeiling * 100)
	return &score, &burnRate
}

// sbcRevenueScore scores trailing-4Q stock-based compensation over
// trailing-4Q revenue. SBC with no revenue is defined as the worst
// case (metric 1.0, score 100), not an undefined ratio.
func (e *Engine) sbcRevenueScore(quarters []*contracts.QuarterlyFundamentals) (*float64, *float64) {
	recent := trailing(quarters, 4)
	if len(recent) == 0 {
		return nil, nil
	}

	var totalSBC, totalRev float64
	for _, q := range recent {
		if q.SBC != nil {
			totalSBC += *q.SBC
		}
		if q.Revenue != nil {
			totalRev += *q.Revenue
		}
	}

	if totalRev > 0 {
		pct := totalSBC / totalRev
		score := clampScore(pct / e.cfg.SBCRevenueCeiling * 100)
		return &score, &pct
	}

	if totalSBC > 0 {
		// Pre-revenue company paying in stock: maximum dilution concern.
		return ptr(100.0), ptr(1.0)
	}

	return nil, nil
}

// offeringCount counts dilution-event filings in the trailing 3 years.
func (e *Engine) offeringCount(filings []*contracts.Filing, now time.Time) int {
	cutoff := now.AddDate(0, 0, -3*365)
	count := 0
	for _, f := range filings {
		if f.IsDilutionEvent && f.FiledDate != nil && !f.FiledDate.Before(cutoff) {
			count++
		}
	}
	return count
}

// runwayScore scores how few months of cash remain at the trailing
// burn rate. Not burning, or cash unknown, scores 0.
func (e *Engine) runwayScore(quarters []*contracts.QuarterlyFundamentals) (*float64, *float64) {
	var latestCash *float64
	for i := len(quarters) - 1; i >= 0; i-- {
		if quarters[i].Cash != nil {
			latestCash = quarters[i].Cash
			break
		}
	}
	if latestCash == nil {
		return ptr(0.0), nil
	}

	negFCF := negativeFCF(trailing(quarters, 4))
	if len(negFCF) == 0 {
		return ptr(0.0), nil
	}

	negFCF = e.removeOutliers(negFCF, "cash_runway")
	avgQuarterlyBurn := math.Abs(mean(negFCF))
	if avgQuarterlyBurn == 0 {
		return ptr(0.0), nil
	}

	months := *latestCash / avgQuarterlyBurn * 3
	score := (e.cfg.CashRunwayMaxMonths - months) / e.cfg.CashRunwayMaxMonths * 100
	if score < 0 {
		score = 0
	}
	return &score, &months
}

// atmScore scores the most recent shelf filing within 2 years by age
// and selling evidence. A fresh, unused shelf is the single highest
// near-term risk signal: fully loaded capacity with no dilution
// priced in yet. An old shelf with heavy selling is likely exhausted.
func (e *Engine) atmScore(filings []*contracts.Filing, now time.Time) (float64, bool) {
	cutoff := now.AddDate(0, 0, -2*365)

	var latestShelf *contracts.Filing
	for _, f := range filings {
		if !isShelf(f) || f.FiledDate == nil || f.FiledDate.Before(cutoff) {
			continue
		}
		if latestShelf == nil || f.FiledDate.After(*latestShelf.FiledDate) {
			latestShelf = f
		}
	}
	if latestShelf == nil {
		return 0, false
	}

	shelfDate := *latestShelf.FiledDate

	// Non-shelf dilution filings after the shelf date are evidence of
	// selling under it.
	hasSelling := false
	for _, f := range filings {
		if f.IsDilutionEvent && f.FiledDate != nil && f.FiledDate.After(shelfDate) &&
			f.FilingType != "S-3" && f.FilingType != "S-3/A" {
			hasSelling = true
			break
		}
	}

	monthsSince := now.Sub(shelfDate).Hours() / 24 / 30.44

	switch {
	case monthsSince < 6:
		if hasSelling {
			return 90, true
		}
		return 100, true
	case monthsSince < 12:
		if hasSelling {
			return 80, true
		}
		return 70, true
	default: // 12-24 months
		if hasSelling {
			return 60, true
		}
		return 25, true
	}
}

// composite is the weighted sum of the present sub-scores. A null
// sub-score drops out along with its weight and the remaining weights
// renormalize to 1, so a security is never penalized for a metric
// that could not be computed. All null means composite 0.
func (e *Engine) composite(s *contracts.DilutionScore) float64 {
	parts := []struct {
		score  *float64
		weight float64
	}{
		{s.ShareCAGRScore, e.cfg.WeightShareCAGR},
		{s.FCFBurnScore, e.cfg.WeightFCFBurn},
		{s.SBCRevenueScore, e.cfg.WeightSBCRevenue},
		{s.OfferingFreqScore, e.cfg.WeightOfferingFreq},
		{s.CashRunwayScore, e.cfg.WeightCashRunway},
		{s.ATMActiveScore, e.cfg.WeightATMActive},
	}

	var weightedSum, totalWeight float64
	for _, p := range parts {
		if p.score != nil {
			weightedSum += *p.score * p.weight
			totalWeight += p.weight
		}
	}

	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

func isShelf(f *contracts.Filing) bool {
	return f.FilingType == "S-3" || f.FilingType == "S-3/A" ||
		f.DilutionType == contracts.DilutionATM
}

func negativeFCF(quarters []*contracts.QuarterlyFundamentals) []float64 {
	var out []float64
	for _, q := range quarters {
		if q.FreeCashFlow != nil && *q.FreeCashFlow < 0 {
			out = append(out, *q.FreeCashFlow)
		}
	}
	return out
}

func trailing(quarters []*contracts.QuarterlyFundamentals, n int) []*contracts.QuarterlyFundamentals {
	if len(quarters) <= n {
		return quarters
	}
	return quarters[len(quarters)-n:]
}

func roundScores(s *contracts.DilutionScore) {
	for _, p := range []**float64{
		&s.ShareCAGRScore, &s.FCFBurnScore, &s.SBCRevenueScore,
		&s.OfferingFreqScore, &s.CashRunwayScore, &s.ATMActiveScore,
	} {
		if *p != nil {
			*p = ptr(round2(**p))
		}
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 {
	return &v
}
