package quality

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/pkg/logger"
)

// fakeFundamentalsRepo records UpdateField calls.
type fakeFundamentalsRepo struct {
	contracts.FundamentalsRepository
	updates map[int64]map[string]*float64
}

func newFakeFundamentalsRepo() *fakeFundamentalsRepo {
	return &fakeFundamentalsRepo{updates: make(map[int64]map[string]*float64)}
}

func (r *fakeFundamentalsRepo) UpdateField(_ context.Context, rowID int64, field string, value *float64) error {
	if r.updates[rowID] == nil {
		r.updates[rowID] = make(map[string]*float64)
	}
	r.updates[rowID][field] = value
	return nil
}

func TestDetectOutliers_SkipsSparseFields(t *testing.T) {
	outliers := DetectOutliers(fcfHistory(-5e6, -900e9, -6e6))
	assert.Empty(t, outliers, "three points are not enough for a fence")
}

func TestDetectOutliers_FlagsAbsurdValue(t *testing.T) {
	history := fcfHistory(-5e6, -6e6, -5.5e6, -4.5e6, -5e9)

	outliers := DetectOutliers(history)

	require.Len(t, outliers, 1)
	assert.Equal(t, "free cash flow", outliers[0].FieldLabel)
	assert.Equal(t, "free_cash_flow", outliers[0].Column)
	assert.Equal(t, -5e9, outliers[0].Value)
	assert.Equal(t, int64(5), outliers[0].Row.ID)
}

func TestDetectOutliers_ChecksFieldsIndependently(t *testing.T) {
	history := fcfHistory(-5e6, -6e6, -5.5e6, -4.5e6)
	// Revenue on only two rows: too sparse for its own fence.
	history[0].Revenue = fp(10e6)
	history[1].Revenue = fp(900e12)

	outliers := DetectOutliers(history)
	assert.Empty(t, outliers)
}

func TestAuditSecurity_ReportOnly(t *testing.T) {
	v := NewValidator(&fakeOracle{}, logger.NewNop())
	repo := newFakeFundamentalsRepo()
	history := fcfHistory(-5e6, -6e6, -5.5e6, -4.5e6, -5e9)

	result, err := v.AuditSecurity(context.Background(), "ABCD", history, repo, false)

	require.NoError(t, err)
	assert.Len(t, result.Outliers, 1)
	assert.Zero(t, result.Corrected)
	assert.Empty(t, repo.updates, "report-only audit never writes")
}

func TestAuditSecurity_FixWritesCorrection(t *testing.T) {
	oracle := &fakeOracle{answers: map[string]*float64{
		"free cash flow": fp(-5e6),
	}}
	v := NewValidator(oracle, logger.NewNop())
	repo := newFakeFundamentalsRepo()
	history := fcfHistory(-5e6, -6e6, -5.5e6, -4.5e6, -5e9)

	result, err := v.AuditSecurity(context.Background(), "ABCD", history, repo, true)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Corrected)
	require.Contains(t, repo.updates, int64(5))
	corrected := repo.updates[5]["free_cash_flow"]
	require.NotNil(t, corrected)
	assert.Equal(t, -5e6, *corrected)
}

func TestAuditSecurity_InconclusiveLeavesRowAlone(t *testing.T) {
	oracle := &fakeOracle{answers: map[string]*float64{}} // UNKNOWN
	v := NewValidator(oracle, logger.NewNop())
	repo := newFakeFundamentalsRepo()
	history := fcfHistory(-5e6, -6e6, -5.5e6, -4.5e6, -5e9)

	result, err := v.AuditSecurity(context.Background(), "ABCD", history, repo, true)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Discarded)
	assert.Zero(t, result.Corrected)
	assert.Empty(t, repo.updates, "a stored value is replaced only on positive evidence")
}
