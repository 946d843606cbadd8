package quality

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/pkg/logger"
)

func fp(v float64) *float64 { return &v }

// fakeOracle returns a canned answer per field label.
type fakeOracle struct {
	answers map[string]*float64
	err     error
	calls   int
}

func (o *fakeOracle) CorrectValue(_ context.Context, _, fieldLabel, _ string, _ float64) (*float64, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	return o.answers[fieldLabel], nil
}

func fcfHistory(values ...float64) []*contracts.QuarterlyFundamentals {
	out := make([]*contracts.QuarterlyFundamentals, 0, len(values))
	for i, v := range values {
		fv := v
		out = append(out, &contracts.QuarterlyFundamentals{
			ID:           int64(i + 1),
			FiscalPeriod: "2024-Q1",
			FreeCashFlow: &fv,
		})
	}
	return out
}

func TestIsSuspect_MedianRule(t *testing.T) {
	existing := []float64{-10e6, -12e6, -11e6}

	tests := []struct {
		name    string
		value   float64
		suspect bool
	}{
		{"near median", -13e6, false},
		{"exactly 5x median is fine", -55e6, false}, // strict inequality
		{"just past 5x", -55e6 - 1e3, true},
		{"wild value", -900e6, true},
		{"sign flip within bound", 20e6, false}, // ratio uses magnitude
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suspect, _ := isSuspect(tt.value, existing, 100e6)
			assert.Equal(t, tt.suspect, suspect)
		})
	}
}

func TestIsSuspect_ZeroMedianFallsBackToMax(t *testing.T) {
	// Median 0 but one nonzero historical point.
	existing := []float64{0, 0, -10e6, 0}

	suspect, _ := isSuspect(-40e6, existing, 0)
	assert.False(t, suspect, "4x the max magnitude")

	suspect, _ = isSuspect(-60e6, existing, 0)
	assert.True(t, suspect, "6x the max magnitude")
}

func TestIsSuspect_AllZeroHistory(t *testing.T) {
	existing := []float64{0, 0, 0}

	suspect, _ := isSuspect(5e5, existing, 0)
	assert.False(t, suspect)

	suspect, _ = isSuspect(5e7, existing, 0)
	assert.True(t, suspect, "large value against an all-zero history")
}

func TestIsSuspect_SparseHistoryUsesMarketCap(t *testing.T) {
	existing := []float64{-10e6} // below the median minimum

	suspect, _ := isSuspect(-25e6, existing, 10e6)
	assert.False(t, suspect, "2.5x market cap is inside the bound")

	suspect, _ = isSuspect(-40e6, existing, 10e6)
	assert.True(t, suspect, "4x market cap")

	// No market cap either: nothing to compare against, accept.
	suspect, _ = isSuspect(-40e6, existing, 0)
	assert.False(t, suspect)
}

func TestValidateIncoming_CleanRecordUntouched(t *testing.T) {
	v := NewValidator(nil, logger.NewNop())

	incoming := contracts.QuarterRecord{
		FiscalPeriod: "2024-Q3",
		FreeCashFlow: fp(-11e6),
		Revenue:      fp(20e6),
	}
	cleaned := v.ValidateIncoming(context.Background(), "ABCD", "2024-Q3",
		incoming, fcfHistory(-10e6, -12e6, -11e6), 100e6)

	require.NotNil(t, cleaned.FreeCashFlow)
	assert.Equal(t, -11e6, *cleaned.FreeCashFlow)
	require.NotNil(t, cleaned.Revenue)
	assert.Equal(t, 20e6, *cleaned.Revenue)
}

func TestValidateIncoming_SuspectDiscardedWithoutOracle(t *testing.T) {
	v := NewValidator(nil, logger.NewNop())

	incoming := contracts.QuarterRecord{FreeCashFlow: fp(-900e6)}
	cleaned := v.ValidateIncoming(context.Background(), "ABCD", "2024-Q3",
		incoming, fcfHistory(-10e6, -12e6, -11e6), 100e6)

	assert.Nil(t, cleaned.FreeCashFlow, "uncorrectable suspect values are dropped")
}

func TestValidateIncoming_OracleCorrects(t *testing.T) {
	oracle := &fakeOracle{answers: map[string]*float64{
		"free cash flow": fp(-9.6e6),
	}}
	v := NewValidator(oracle, logger.NewNop())

	incoming := contracts.QuarterRecord{FreeCashFlow: fp(-900e6)}
	cleaned := v.ValidateIncoming(context.Background(), "ABCD", "2024-Q3",
		incoming, fcfHistory(-10e6, -12e6, -11e6), 100e6)

	require.NotNil(t, cleaned.FreeCashFlow)
	assert.Equal(t, -9.6e6, *cleaned.FreeCashFlow)
	assert.Equal(t, 1, oracle.calls)
}

func TestValidateIncoming_OracleInconclusiveDiscards(t *testing.T) {
	oracle := &fakeOracle{answers: map[string]*float64{}} // all UNKNOWN
	v := NewValidator(oracle, logger.NewNop())

	incoming := contracts.QuarterRecord{FreeCashFlow: fp(-900e6)}
	cleaned := v.ValidateIncoming(context.Background(), "ABCD", "2024-Q3",
		incoming, fcfHistory(-10e6, -12e6, -11e6), 100e6)

	assert.Nil(t, cleaned.FreeCashFlow)
}

func TestValidateIncoming_OracleErrorDiscards(t *testing.T) {
	oracle := &fakeOracle{err: errors.New("upstream down")}
	v := NewValidator(oracle, logger.NewNop())

	incoming := contracts.QuarterRecord{FreeCashFlow: fp(-900e6)}
	cleaned := v.ValidateIncoming(context.Background(), "ABCD", "2024-Q3",
		incoming, fcfHistory(-10e6, -12e6, -11e6), 100e6)

	assert.Nil(t, cleaned.FreeCashFlow, "oracle failure must not block ingestion")
}

func TestValidateIncoming_NilFieldsSkipped(t *testing.T) {
	oracle := &fakeOracle{}
	v := NewValidator(oracle, logger.NewNop())

	cleaned := v.ValidateIncoming(context.Background(), "ABCD", "2024-Q3",
		contracts.QuarterRecord{}, fcfHistory(-10e6, -12e6, -11e6), 100e6)

	assert.Nil(t, cleaned.FreeCashFlow)
	assert.Equal(t, 0, oracle.calls)
}

func TestMedian(t *testing.T) {
	assert.Equal(t, -11e6, median([]float64{-10e6, -12e6, -11e6}))
	assert.Equal(t, -11e6, median([]float64{-10e6, -12e6}))
}
