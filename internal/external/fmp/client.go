// Package fmp is the market data client. It talks to a Financial
// Modeling Prep compatible API: universe screener, quarterly
// statements, company profile, and split-adjusted daily prices.
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/pkg/config"
	"github.com/hwahn/dilmon/pkg/httputil"
	"github.com/hwahn/dilmon/pkg/logger"
)

// Client handles communication with the market data API. A single
// instance serializes its calls through the embedded rate limiter.
type Client struct {
	http    *httputil.Client
	logger  *logger.Logger
	apiKey  string
	baseURL string
}

// NewClient creates a new market data client.
func NewClient(cfg config.MarketDataConfig, log *logger.Logger) *Client {
	return &Client{
		http:    httputil.New(log, cfg.MinDelay),
		logger:  log,
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
	}
}

// UniverseEntry is one listed security from the screener.
type UniverseEntry struct {
	Ticker    string
	Name      string
	Sector    string
	Exchange  string
	MarketCap float64
}

// IncomeRow is one quarterly income statement record.
type IncomeRow struct {
	Date          string
	SharesDiluted *float64
	Revenue       *float64
}

// CashflowRow is one quarterly cash flow statement record.
type CashflowRow struct {
	Date         string
	FreeCashFlow *float64
	SBC          *float64
}

// BalanceRow is one quarterly balance sheet record.
type BalanceRow struct {
	Date string
	Cash *float64
}

// PricePoint is one daily split-adjusted close.
type PricePoint struct {
	Date  string
	Close float64
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)

	fullURL := c.baseURL + path + "?" + params.Encode()

	body, err := c.http.GetBody(ctx, fullURL, 0)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// GetUniverse fetches the equity universe, filtered to strictly
// positive market cap.
func (c *Client) GetUniverse(ctx context.Context) ([]UniverseEntry, error) {
	var raw []struct {
		Symbol      string  `json:"symbol"`
		CompanyName string  `json:"companyName"`
		Sector      string  `json:"sector"`
		Exchange    string  `json:"exchange"`
		MarketCap   float64 `json:"marketCap"`
	}

	params := url.Values{}
	params.Set("limit", "10000")
	if err := c.get(ctx, "/company-screener", params, &raw); err != nil {
		return nil, fmt.Errorf("fetch universe: %w", err)
	}

	entries := make([]UniverseEntry, 0, len(raw))
	for _, item := range raw {
		if item.Symbol == "" || item.MarketCap <= 0 {
			continue
		}
		name := item.CompanyName
		if name == "" {
			name = item.Symbol
		}
		entries = append(entries, UniverseEntry{
			Ticker:    item.Symbol,
			Name:      name,
			Sector:    item.Sector,
			Exchange:  item.Exchange,
			MarketCap: item.MarketCap,
		})
	}

	c.logger.WithField("count", len(entries)).Info("Fetched equity universe")
	return entries, nil
}

// GetIncomeStatements fetches quarterly income statements.
func (c *Client) GetIncomeStatements(ctx context.Context, ticker string, limit int) ([]IncomeRow, error) {
	var raw []struct {
		Date          string   `json:"date"`
		SharesDiluted *float64 `json:"weightedAverageShsOutDil"`
		Revenue       *float64 `json:"revenue"`
	}

	if err := c.get(ctx, "/income-statement", statementParams(ticker, limit), &raw); err != nil {
		return nil, fmt.Errorf("fetch income statements for %s: %w", ticker, err)
	}

	rows := make([]IncomeRow, 0, len(raw))
	for _, item := range raw {
		rows = append(rows, IncomeRow{Date: item.Date, SharesDiluted: item.SharesDiluted, Revenue: item.Revenue})
	}
	return rows, nil
}

// GetCashflowStatements fetches quarterly cash flow statements.
func (c *Client) GetCashflowStatements(ctx context.Context, ticker string, limit int) ([]CashflowRow, error) {
	var raw []struct {
		Date         string   `json:"date"`
		FreeCashFlow *float64 `json:"freeCashFlow"`
		SBC          *float64 `json:"stockBasedCompensation"`
	}

	if err := c.get(ctx, "/cash-flow-statement", statementParams(ticker, limit), &raw); err != nil {
		return nil, fmt.Errorf("fetch cashflow statements for %s: %w", ticker, err)
	}

	rows := make([]CashflowRow, 0, len(raw))
	for _, item := range raw {
		rows = append(rows, CashflowRow{Date: item.Date, FreeCashFlow: item.FreeCashFlow, SBC: item.SBC})
	}
	return rows, nil
}

// GetBalanceSheets fetches quarterly balance sheets.
func (c *Client) GetBalanceSheets(ctx context.Context, ticker string, limit int) ([]BalanceRow, error) {
	var raw []struct {
		Date string   `json:"date"`
		Cash *float64 `json:"cashAndCashEquivalents"`
	}

	if err := c.get(ctx, "/balance-sheet-statement", statementParams(ticker, limit), &raw); err != nil {
		return nil, fmt.Errorf("fetch balance sheets for %s: %w", ticker, err)
	}

	rows := make([]BalanceRow, 0, len(raw))
	for _, item := range raw {
		rows = append(rows, BalanceRow{Date: item.Date, Cash: item.Cash})
	}
	return rows, nil
}

// GetQuarterlyFinancials pulls income, cashflow and balance sheet
// records and merges them by statement date into unified quarterly
// records. The fiscal period is bucketed from the calendar month of
// the statement date, not the company's actual fiscal year.
func (c *Client) GetQuarterlyFinancials(ctx context.Context, ticker string, limit int) ([]contracts.QuarterRecord, error) {
	income, err := c.GetIncomeStatements(ctx, ticker, limit)
	if err != nil {
		return nil, err
	}
	cashflow, err := c.GetCashflowStatements(ctx, ticker, limit)
	if err != nil {
		return nil, err
	}
	balance, err := c.GetBalanceSheets(ctx, ticker, limit)
	if err != nil {
		return nil, err
	}

	merged := mergeQuarters(income, cashflow, balance)
	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"count":  len(merged),
	}).Debug("Merged quarterly records")
	return merged, nil
}

// GetScreeningFinancials pulls only income and cashflow records, the
// two statements the quick screen reads. Skipping the balance sheet
// saves one rate-limited call per screened security; Cash stays nil.
func (c *Client) GetScreeningFinancials(ctx context.Context, ticker string, limit int) ([]contracts.QuarterRecord, error) {
	income, err := c.GetIncomeStatements(ctx, ticker, limit)
	if err != nil {
		return nil, err
	}
	cashflow, err := c.GetCashflowStatements(ctx, ticker, limit)
	if err != nil {
		return nil, err
	}
	return mergeQuarters(income, cashflow, nil), nil
}

// mergeQuarters joins statement rows by statement date, keyed off the
// income statement.
func mergeQuarters(income []IncomeRow, cashflow []CashflowRow, balance []BalanceRow) []contracts.QuarterRecord {
	cfByDate := make(map[string]CashflowRow, len(cashflow))
	for _, row := range cashflow {
		cfByDate[row.Date] = row
	}
	bsByDate := make(map[string]BalanceRow, len(balance))
	for _, row := range balance {
		bsByDate[row.Date] = row
	}

	merged := make([]contracts.QuarterRecord, 0, len(income))
	for _, inc := range income {
		cf := cfByDate[inc.Date]
		bs := bsByDate[inc.Date]

		merged = append(merged, contracts.QuarterRecord{
			Date:          inc.Date,
			FiscalPeriod:  DateToFiscalPeriod(inc.Date),
			SharesDiluted: inc.SharesDiluted,
			FreeCashFlow:  cf.FreeCashFlow,
			SBC:           cf.SBC,
			Revenue:       inc.Revenue,
			Cash:          bs.Cash,
		})
	}
	return merged
}

// GetHistoricalPrices fetches daily split-adjusted closes, oldest first.
func (c *Client) GetHistoricalPrices(ctx context.Context, ticker, fromDate, toDate string) ([]PricePoint, error) {
	var raw []struct {
		Date     string   `json:"date"`
		AdjClose *float64 `json:"adjClose"`
		Close    *float64 `json:"close"`
	}

	params := url.Values{}
	params.Set("symbol", ticker)
	if fromDate != "" {
		params.Set("from", fromDate)
	}
	if toDate != "" {
		params.Set("to", toDate)
	}

	if err := c.get(ctx, "/historical-price-eod/full", params, &raw); err != nil {
		return nil, fmt.Errorf("fetch prices for %s: %w", ticker, err)
	}

	// API returns newest-first; reverse to oldest-first.
	points := make([]PricePoint, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		item := raw[i]
		if item.Date == "" {
			continue
		}
		close := item.Close
		if item.AdjClose != nil {
			close = item.AdjClose
		}
		if close == nil {
			continue
		}
		points = append(points, PricePoint{Date: item.Date, Close: *close})
	}
	return points, nil
}

// GetTrailingReturn computes the trailing 12-month price change as a
// decimal (e.g. -0.35 = -35%). Returns nil when fewer than 2 usable
// points exist or the earliest close is non-positive.
func (c *Client) GetTrailingReturn(ctx context.Context, ticker string) (*float64, error) {
	now := time.Now()
	to := now.Format("2006-01-02")
	from := now.AddDate(0, 0, -365).Format("2006-01-02")

	prices, err := c.GetHistoricalPrices(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	if len(prices) < 2 {
		return nil, nil
	}

	oldest := prices[0].Close
	newest := prices[len(prices)-1].Close
	if oldest <= 0 {
		return nil, nil
	}

	change := (newest - oldest) / oldest
	return &change, nil
}

// DateToFiscalPeriod converts "YYYY-MM-DD" to "YYYY-Qn" by calendar
// quarter. This deliberately ignores the company's actual fiscal year
// end; quarters of non-calendar filers land in the nearest calendar
// bucket.
func DateToFiscalPeriod(dateStr string) string {
	if len(dateStr) < 7 {
		return "unknown"
	}
	month, err := strconv.Atoi(dateStr[5:7])
	if err != nil || month < 1 || month > 12 {
		return "unknown"
	}
	quarter := (month-1)/3 + 1
	return fmt.Sprintf("%s-Q%d", dateStr[:4], quarter)
}

// ParseFiscalPeriod parses "2024-Q3" into (2024, 3). Returns zeros
// when the period is malformed.
func ParseFiscalPeriod(period string) (int, int) {
	var year, quarter int
	if _, err := fmt.Sscanf(period, "%d-Q%d", &year, &quarter); err != nil {
		return 0, 0
	}
	return year, quarter
}

func statementParams(ticker string, limit int) url.Values {
	params := url.Values{}
	params.Set("symbol", ticker)
	params.Set("period", "quarter")
	params.Set("limit", strconv.Itoa(limit))
	return params
}
