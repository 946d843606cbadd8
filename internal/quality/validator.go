// Package quality screens financial values for implausible outliers,
// both at ingestion time and retrospectively over stored history.
// Suspect values that cannot be confirmed are discarded rather than
// persisted: a null field degrades one metric, a wrong field poisons
// every score built on it.
package quality

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/pkg/logger"
)

const (
	// Incoming values more than this multiple away from the median of
	// existing quarters are suspect. Strictly greater: exactly 5x the
	// median passes.
	suspectThreshold = 5.0

	// With little history, a single quarter's value is bounded
	// relative to market cap instead.
	marketCapRatioLimit = 3.0

	// When every stored value is zero, an incoming value above this
	// absolute floor is suspect on its own.
	zeroHistoryFloor = 1e6

	// Minimum history before the median comparison applies.
	minHistoryForMedian = 3
)

// CorrectionOracle looks up the true value of a suspect field. A nil
// result with nil error means the oracle could not determine it.
type CorrectionOracle interface {
	CorrectValue(ctx context.Context, ticker, fieldLabel, fiscalPeriod string, currentValue float64) (*float64, error)
}

// Validator validates incoming records and audits stored history.
type Validator struct {
	oracle CorrectionOracle // nil = no oracle configured
	logger *logger.Logger
}

// NewValidator creates a validator. oracle may be nil, in which case
// suspect values are discarded without a correction attempt.
func NewValidator(oracle CorrectionOracle, log *logger.Logger) *Validator {
	return &Validator{oracle: oracle, logger: log}
}

// recordField binds a field name to its slot on the incoming record
// and its accessor on stored rows, so the same validation loop covers
// every numeric column.
type recordField struct {
	label    string
	incoming func(*contracts.QuarterRecord) **float64
	stored   func(*contracts.QuarterlyFundamentals) *float64
}

var recordFields = []recordField{
	{
		label:    "free cash flow",
		incoming: func(r *contracts.QuarterRecord) **float64 { return &r.FreeCashFlow },
		stored:   func(f *contracts.QuarterlyFundamentals) *float64 { return f.FreeCashFlow },
	},
	{
		label:    "cash and equivalents",
		incoming: func(r *contracts.QuarterRecord) **float64 { return &r.Cash },
		stored:   func(f *contracts.QuarterlyFundamentals) *float64 { return f.Cash },
	},
	{
		label:    "revenue",
		incoming: func(r *contracts.QuarterRecord) **float64 { return &r.Revenue },
		stored:   func(f *contracts.QuarterlyFundamentals) *float64 { return f.Revenue },
	},
	{
		label:    "stock based compensation",
		incoming: func(r *contracts.QuarterRecord) **float64 { return &r.SBC },
		stored:   func(f *contracts.QuarterlyFundamentals) *float64 { return f.SBC },
	},
	{
		label:    "diluted shares outstanding",
		incoming: func(r *contracts.QuarterRecord) **float64 { return &r.SharesDiluted },
		stored:   func(f *contracts.QuarterlyFundamentals) *float64 { return f.SharesDiluted },
	},
}

// ValidateIncoming checks each numeric field of an incoming record
// against the security's stored history (or market cap when history
// is sparse) and returns a cleaned copy. Suspect fields are referred
// to the oracle; a parsed reply replaces the value, an inconclusive
// reply clears it.
func (v *Validator) ValidateIncoming(
	ctx context.Context,
	ticker, fiscalPeriod string,
	incoming contracts.QuarterRecord,
	history []*contracts.QuarterlyFundamentals,
	marketCap float64,
) contracts.QuarterRecord {
	cleaned := incoming

	for _, field := range recordFields {
		slot := field.incoming(&cleaned)
		if *slot == nil {
			continue
		}
		value := **slot

		var existing []float64
		for _, row := range history {
			if fv := field.stored(row); fv != nil {
				existing = append(existing, *fv)
			}
		}

		suspect, reason := isSuspect(value, existing, marketCap)
		if !suspect {
			continue
		}

		v.logger.WithFields(map[string]interface{}{
			"ticker": ticker,
			"period": fiscalPeriod,
			"field":  field.label,
			"value":  value,
			"reason": reason,
		}).Warn("Suspect incoming value")

		*slot = v.resolveSuspect(ctx, ticker, field.label, fiscalPeriod, value)
	}

	return cleaned
}

// resolveSuspect asks the oracle about a flagged value. Correctness
// beats completeness: with no oracle or no answer, the field is
// dropped instead of stored.
func (v *Validator) resolveSuspect(ctx context.Context, ticker, fieldLabel, fiscalPeriod string, value float64) *float64 {
	if v.oracle == nil {
		return nil
	}

	corrected, err := v.oracle.CorrectValue(ctx, ticker, fieldLabel, fiscalPeriod, value)
	if err != nil {
		v.logger.WithError(err).WithField("ticker", ticker).Warn("Oracle lookup failed, discarding value")
		return nil
	}
	if corrected == nil {
		v.logger.WithFields(map[string]interface{}{
			"ticker": ticker,
			"field":  fieldLabel,
		}).Warn("Oracle inconclusive, discarding value")
		return nil
	}

	v.logger.WithFields(map[string]interface{}{
		"ticker":    ticker,
		"field":     fieldLabel,
		"period":    fiscalPeriod,
		"old_value": value,
		"corrected": *corrected,
	}).Info("Oracle corrected value")
	return corrected
}

// isSuspect applies the statistical screen for one field value.
func isSuspect(value float64, existing []float64, marketCap float64) (bool, string) {
	if len(existing) >= minHistoryForMedian {
		med := median(existing)

		if med != 0 {
			ratio := math.Abs(value / med)
			if ratio > suspectThreshold {
				return true, fmt.Sprintf("%.1fx median (%.0f)", ratio, med)
			}
			return false, ""
		}

		// Median is zero but the incoming value is not: fall back to
		// the largest historical magnitude.
		maxExisting := 0.0
		for _, e := range existing {
			if a := math.Abs(e); a > maxExisting {
				maxExisting = a
			}
		}
		if maxExisting > 0 {
			if math.Abs(value)/maxExisting > suspectThreshold {
				return true, fmt.Sprintf("%.1fx max existing (%.0f)", math.Abs(value)/maxExisting, maxExisting)
			}
			return false, ""
		}
		if math.Abs(value) > zeroHistoryFloor {
			return true, fmt.Sprintf("all existing are 0, incoming is %.0f", value)
		}
		return false, ""
	}

	// Sparse history: bound by market cap when one is known.
	if marketCap > 0 && math.Abs(value) > marketCap*marketCapRatioLimit {
		return true, fmt.Sprintf("%.1fx market cap (%.0f)", math.Abs(value)/marketCap, marketCap)
	}

	return false, ""
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
