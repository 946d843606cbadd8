package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/pkg/logger"
)

type fakeSecurityRepo struct {
	contracts.SecurityRepository
	byTicker map[string]*contracts.Security
	byID     map[int64]*contracts.Security
}

func (r *fakeSecurityRepo) GetByTicker(_ context.Context, ticker string) (*contracts.Security, error) {
	return r.byTicker[ticker], nil
}

func (r *fakeSecurityRepo) GetByID(_ context.Context, id int64) (*contracts.Security, error) {
	return r.byID[id], nil
}

type fakeScoreRepo struct {
	contracts.ScoreRepository
	latest  map[int64]*contracts.DilutionScore
	history map[int64][]*contracts.DilutionScore
}

func (r *fakeScoreRepo) LatestBySecurity(_ context.Context, id int64) (*contracts.DilutionScore, error) {
	return r.latest[id], nil
}

func (r *fakeScoreRepo) HistoryBySecurity(_ context.Context, id int64) ([]*contracts.DilutionScore, error) {
	return r.history[id], nil
}

func (r *fakeScoreRepo) LatestAll(_ context.Context) ([]*contracts.DilutionScore, error) {
	var out []*contracts.DilutionScore
	for _, s := range r.latest {
		out = append(out, s)
	}
	return out, nil
}

type fakeFilingRepo struct {
	contracts.FilingRepository
	bySecurity map[int64][]*contracts.Filing
}

func (r *fakeFilingRepo) ListBySecurity(_ context.Context, id int64) ([]*contracts.Filing, error) {
	return r.bySecurity[id], nil
}

func testHandler() *ScoreHandler {
	sec := &contracts.Security{ID: 1, Ticker: "ABCD", Tier: contracts.TierWatchlist}
	score := &contracts.DilutionScore{
		ID:         10,
		SecurityID: 1,
		ScoreDate:  time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Composite:  67.5,
	}
	filed := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)

	return NewScoreHandler(
		&fakeSecurityRepo{
			byTicker: map[string]*contracts.Security{"ABCD": sec},
			byID:     map[int64]*contracts.Security{1: sec},
		},
		&fakeScoreRepo{
			latest:  map[int64]*contracts.DilutionScore{1: score},
			history: map[int64][]*contracts.DilutionScore{1: {score}},
		},
		&fakeFilingRepo{
			bySecurity: map[int64][]*contracts.Filing{1: {{
				SecurityID:      1,
				AccessionNumber: "0001234567-26-000001",
				FilingType:      "S-3",
				FiledDate:       &filed,
				IsDilutionEvent: true,
				DilutionType:    contracts.DilutionATMShelf,
			}}},
		},
		logger.NewNop(),
	)
}

func get(t *testing.T, handler http.HandlerFunc, ticker string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if ticker != "" {
		req = mux.SetURLVars(req, map[string]string{"ticker": ticker})
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestGetLatestScore(t *testing.T) {
	h := testHandler()

	rec := get(t, h.GetLatestScore, "abcd") // ticker is case-insensitive

	require.Equal(t, http.StatusOK, rec.Code)
	var got scoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ABCD", got.Ticker)
	assert.Equal(t, 67.5, got.Composite)
}

func TestGetLatestScore_UnknownTicker(t *testing.T) {
	h := testHandler()

	rec := get(t, h.GetLatestScore, "NOPE")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetLatestScore_NoScoreYet(t *testing.T) {
	h := testHandler()
	h.scores = &fakeScoreRepo{latest: map[int64]*contracts.DilutionScore{}}

	rec := get(t, h.GetLatestScore, "ABCD")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetScoreHistory(t *testing.T) {
	h := testHandler()

	rec := get(t, h.GetScoreHistory, "ABCD")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []scoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 67.5, got[0].Composite)
}

func TestGetFilings(t *testing.T) {
	h := testHandler()

	rec := get(t, h.GetFilings, "ABCD")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []filingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "S-3", got[0].FilingType)
	require.NotNil(t, got[0].FiledDate)
	assert.Equal(t, "2026-07-15", *got[0].FiledDate)
}

func TestGetLatestScores(t *testing.T) {
	h := testHandler()

	rec := get(t, h.GetLatestScores, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []scoreResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "ABCD", got[0].Ticker)
}
