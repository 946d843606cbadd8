package scoring

import "sort"

// removeOutliers drops values outside a 3x-IQR fence before averaging
// burn figures, so one anomalous quarter (an acquisition, a data
// error that slipped past validation) cannot dominate a trailing
// average. Below 4 points the fence is meaningless and the input is
// returned as is. Never returns an empty slice: if the fence rejects
// everything, the unfiltered values win over no values.
func (e *Engine) removeOutliers(values []float64, context string) []float64 {
	if len(values) < 4 {
		return values
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	q1 := sorted[n/4]
	q3 := sorted[(3*n)/4]
	iqr := q3 - q1
	lower := q1 - 3*iqr
	upper := q3 + 3*iqr

	var kept []float64
	for _, v := range values {
		if v >= lower && v <= upper {
			kept = append(kept, v)
		}
	}

	if dropped := len(values) - len(kept); dropped > 0 {
		e.logger.WithFields(map[string]interface{}{
			"context": context,
			"dropped": dropped,
			"of":      len(values),
		}).Debug("Dropped outlier values")
	}

	if len(kept) == 0 {
		return values
	}
	return kept
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
