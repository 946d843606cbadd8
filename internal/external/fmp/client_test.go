package fmp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwahn/dilmon/pkg/config"
	"github.com/hwahn/dilmon/pkg/logger"
)

func TestDateToFiscalPeriod(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2024-01-15", "2024-Q1"},
		{"2024-03-31", "2024-Q1"},
		{"2024-04-01", "2024-Q2"},
		{"2024-09-30", "2024-Q3"},
		{"2024-12-31", "2024-Q4"},
		{"2024-13-01", "unknown"},
		{"garbage", "unknown"},
		{"", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			assert.Equal(t, tt.want, DateToFiscalPeriod(tt.date))
		})
	}
}

func TestParseFiscalPeriod(t *testing.T) {
	year, quarter := ParseFiscalPeriod("2024-Q3")
	assert.Equal(t, 2024, year)
	assert.Equal(t, 3, quarter)

	year, quarter = ParseFiscalPeriod("not-a-period")
	assert.Zero(t, year)
	assert.Zero(t, quarter)
}

// testClient points a client at a canned-response server.
func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.MarketDataConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, logger.NewNop())
}

func TestGetQuarterlyFinancials_MergesByDate(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.URL.Query().Get("apikey"))

		var out interface{}
		switch r.URL.Path {
		case "/income-statement":
			out = []map[string]interface{}{
				{"date": "2024-06-30", "weightedAverageShsOutDil": 110e6, "revenue": 21e6},
				{"date": "2024-03-31", "weightedAverageShsOutDil": 100e6, "revenue": 20e6},
			}
		case "/cash-flow-statement":
			out = []map[string]interface{}{
				{"date": "2024-06-30", "freeCashFlow": -6e6, "stockBasedCompensation": 2e6},
				{"date": "2024-03-31", "freeCashFlow": -5e6, "stockBasedCompensation": 1e6},
			}
		case "/balance-sheet-statement":
			// Balance sheet missing the June quarter entirely.
			out = []map[string]interface{}{
				{"date": "2024-03-31", "cashAndCashEquivalents": 30e6},
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(out)
	})

	records, err := c.GetQuarterlyFinancials(context.Background(), "ABCD", 8)
	require.NoError(t, err)
	require.Len(t, records, 2)

	june := records[0]
	assert.Equal(t, "2024-Q2", june.FiscalPeriod)
	require.NotNil(t, june.SharesDiluted)
	assert.Equal(t, 110e6, *june.SharesDiluted)
	require.NotNil(t, june.FreeCashFlow)
	assert.Equal(t, -6e6, *june.FreeCashFlow)
	assert.Nil(t, june.Cash, "missing balance sheet quarter degrades to nil")

	march := records[1]
	assert.Equal(t, "2024-Q1", march.FiscalPeriod)
	require.NotNil(t, march.Cash)
	assert.Equal(t, 30e6, *march.Cash)
}

func TestGetScreeningFinancials_SkipsBalanceSheet(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var out interface{}
		switch r.URL.Path {
		case "/income-statement":
			out = []map[string]interface{}{
				{"date": "2024-03-31", "weightedAverageShsOutDil": 100e6, "revenue": 20e6},
			}
		case "/cash-flow-statement":
			out = []map[string]interface{}{
				{"date": "2024-03-31", "freeCashFlow": -5e6},
			}
		default:
			t.Errorf("screen fetched %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(out)
	})

	records, err := c.GetScreeningFinancials(context.Background(), "ABCD", 8)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].SharesDiluted)
	require.NotNil(t, records[0].FreeCashFlow)
	assert.Nil(t, records[0].Cash)
}

func TestGetUniverse_FiltersZeroMarketCap(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"symbol": "ABCD", "companyName": "Abcd Inc", "marketCap": 50e6},
			{"symbol": "ZERO", "companyName": "Zero Corp", "marketCap": 0},
			{"symbol": "", "companyName": "Nameless", "marketCap": 10e6},
		})
	})

	entries, err := c.GetUniverse(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ABCD", entries[0].Ticker)
}

func TestGetTrailingReturn(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Newest first, as the API returns them.
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"date": "2024-06-28", "adjClose": 6.5, "close": 13.0},
			{"date": "2023-07-03", "adjClose": 10.0, "close": 20.0},
		})
	})

	change, err := c.GetTrailingReturn(context.Background(), "ABCD")
	require.NoError(t, err)
	require.NotNil(t, change)
	// Split-adjusted closes: 10.0 -> 6.5.
	assert.InDelta(t, -0.35, *change, 1e-9)
}

func TestGetTrailingReturn_TooFewPoints(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"date": "2024-06-28", "close": 13.0},
		})
	})

	change, err := c.GetTrailingReturn(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.Nil(t, change)
}

func TestGetTrailingReturn_NonPositiveBase(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"date": "2024-06-28", "close": 13.0},
			{"date": "2023-07-03", "close": 0.0},
		})
	})

	change, err := c.GetTrailingReturn(context.Background(), "ABCD")
	require.NoError(t, err)
	assert.Nil(t, change)
}
