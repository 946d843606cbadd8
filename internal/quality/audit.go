package quality

import (
	"context"
	"fmt"
	"sort"

	"github.com/hwahn/dilmon/internal/contracts"
)

// iqrMultiplier widens the quartile fence. 3x keeps the audit to
// "absurd" values only; legitimate growth quarters sit well inside it.
const iqrMultiplier = 3.0

// minPointsForIQR is how many stored values a field needs before the
// fence is meaningful.
const minPointsForIQR = 4

// auditColumns maps each checked field to its database column, so a
// confirmed correction can be written back through
// FundamentalsRepository.UpdateField.
var auditColumns = map[string]string{
	"free cash flow":             "free_cash_flow",
	"cash and equivalents":       "cash",
	"revenue":                    "revenue",
	"stock based compensation":   "sbc",
	"diluted shares outstanding": "shares_diluted",
}

// Outlier is one stored value outside the IQR fence for its field.
type Outlier struct {
	Row        *contracts.QuarterlyFundamentals
	FieldLabel string
	Column     string
	Value      float64
	Lower      float64
	Upper      float64
}

// DetectOutliers scans a security's stored history per field with a
// 3x-IQR fence. Fields with fewer than 4 stored points are skipped.
func DetectOutliers(history []*contracts.QuarterlyFundamentals) []Outlier {
	var outliers []Outlier

	for _, field := range recordFields {
		type pair struct {
			row   *contracts.QuarterlyFundamentals
			value float64
		}
		var pairs []pair
		for _, row := range history {
			if fv := field.stored(row); fv != nil {
				pairs = append(pairs, pair{row: row, value: *fv})
			}
		}
		if len(pairs) < minPointsForIQR {
			continue
		}

		values := make([]float64, len(pairs))
		for i, p := range pairs {
			values[i] = p.value
		}
		lower, upper := iqrFence(values)

		for _, p := range pairs {
			if p.value < lower || p.value > upper {
				outliers = append(outliers, Outlier{
					Row:        p.row,
					FieldLabel: field.label,
					Column:     auditColumns[field.label],
					Value:      p.value,
					Lower:      lower,
					Upper:      upper,
				})
			}
		}
	}

	return outliers
}

// AuditResult summarizes one retrospective audit pass.
type AuditResult struct {
	Outliers  []Outlier
	Corrected int
	Discarded int
}

// AuditSecurity detects outliers in stored history and, when fix is
// set, routes each through the oracle. Confirmed corrections are
// written back; inconclusive lookups leave the row untouched, since a
// stored value is only replaced on positive evidence.
func (v *Validator) AuditSecurity(
	ctx context.Context,
	ticker string,
	history []*contracts.QuarterlyFundamentals,
	repo contracts.FundamentalsRepository,
	fix bool,
) (*AuditResult, error) {
	result := &AuditResult{Outliers: DetectOutliers(history)}
	if !fix || v.oracle == nil {
		return result, nil
	}

	for _, o := range result.Outliers {
		corrected, err := v.oracle.CorrectValue(ctx, ticker, o.FieldLabel, o.Row.FiscalPeriod, o.Value)
		if err != nil {
			v.logger.WithError(err).WithField("ticker", ticker).Warn("Oracle lookup failed during audit")
			continue
		}
		if corrected == nil {
			result.Discarded++
			continue
		}

		if err := repo.UpdateField(ctx, o.Row.ID, o.Column, corrected); err != nil {
			return result, fmt.Errorf("apply correction for %s %s: %w", ticker, o.Row.FiscalPeriod, err)
		}

		v.logger.WithFields(map[string]interface{}{
			"ticker":    ticker,
			"period":    o.Row.FiscalPeriod,
			"field":     o.FieldLabel,
			"old_value": o.Value,
			"corrected": *corrected,
		}).Info("Audit corrected stored value")
		result.Corrected++
	}

	return result, nil
}

// iqrFence computes the 3x-IQR bounds with quartiles taken at the
// n/4 and 3n/4 positions of the sorted values.
func iqrFence(values []float64) (lower, upper float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	q1 := sorted[n/4]
	q3 := sorted[(3*n)/4]
	iqr := q3 - q1

	return q1 - iqrMultiplier*iqr, q3 + iqrMultiplier*iqr
}
