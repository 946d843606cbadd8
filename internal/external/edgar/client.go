// Package edgar is the filings registry client. It resolves company
// identifiers, pulls filing histories, and classifies filing text
// into dilution-event categories.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hwahn/dilmon/pkg/config"
	"github.com/hwahn/dilmon/pkg/httputil"
	"github.com/hwahn/dilmon/pkg/logger"
)

const (
	companyTickersURL = "https://www.sec.gov/files/company_tickers.json"
	submissionsURL    = "https://data.sec.gov/submissions/CIK%s.json"
	archivesBase      = "https://www.sec.gov/Archives/edgar/data"

	// How much of a filing document the classifier looks at. Offering
	// language shows up in the cover pages, so the head is enough.
	classifyMaxChars = 5000

	cikWidth = 10
)

// DefaultFilingTypes are the form types the pipeline tracks.
var DefaultFilingTypes = []string{"S-3", "S-3/A", "424B5", "8-K"}

// Client handles communication with the filings registry. The
// ticker-to-CIK map is fetched once per process lifetime and cached
// on the client; lookups after that are in-memory.
type Client struct {
	http       *httputil.Client
	logger     *logger.Logger
	classifier Classifier

	tickerToCIK map[string]string // nil until first load
}

// NewClient creates a new filings registry client.
func NewClient(cfg config.FilingsConfig, log *logger.Logger) *Client {
	return &Client{
		http:       httputil.New(log, cfg.MinDelay).WithHeader("User-Agent", cfg.UserAgent),
		logger:     log,
		classifier: NewKeywordClassifier(),
	}
}

// FilingRef is one filing from the submission history.
type FilingRef struct {
	AccessionNumber string
	Form            string
	FilingDate      string // "YYYY-MM-DD"
	DocumentURL     string
}

// loadTickerMap fetches and caches the bulk ticker-to-CIK mapping.
func (c *Client) loadTickerMap(ctx context.Context) error {
	if c.tickerToCIK != nil {
		return nil
	}

	body, err := c.http.GetBody(ctx, companyTickersURL, 0)
	if err != nil {
		return fmt.Errorf("fetch ticker map: %w", err)
	}

	var raw map[string]struct {
		CIK    int64  `json:"cik_str"`
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("decode ticker map: %w", err)
	}

	c.tickerToCIK = make(map[string]string, len(raw))
	for _, entry := range raw {
		if entry.Ticker == "" {
			continue
		}
		c.tickerToCIK[strings.ToUpper(entry.Ticker)] = zeroPadCIK(entry.CIK)
	}

	c.logger.WithField("count", len(c.tickerToCIK)).Info("Loaded ticker-to-CIK map")
	return nil
}

// LookupCIK returns the zero-padded 10-digit CIK for a ticker. The
// second return is false for unknown tickers.
func (c *Client) LookupCIK(ctx context.Context, ticker string) (string, bool, error) {
	if err := c.loadTickerMap(ctx); err != nil {
		return "", false, err
	}
	cik, ok := c.tickerToCIK[strings.ToUpper(ticker)]
	return cik, ok, nil
}

// GetRecentFilings fetches the submission history for a CIK and keeps
// only the given form types, in source order (most recent first), up
// to limit.
func (c *Client) GetRecentFilings(ctx context.Context, cik string, filingTypes []string, limit int) ([]FilingRef, error) {
	if len(filingTypes) == 0 {
		filingTypes = DefaultFilingTypes
	}
	wanted := make(map[string]bool, len(filingTypes))
	for _, t := range filingTypes {
		wanted[t] = true
	}

	body, err := c.http.GetBody(ctx, fmt.Sprintf(submissionsURL, cik), 0)
	if err != nil {
		return nil, fmt.Errorf("fetch submissions for CIK %s: %w", cik, err)
	}

	var data struct {
		Filings struct {
			Recent struct {
				Form            []string `json:"form"`
				FilingDate      []string `json:"filingDate"`
				AccessionNumber []string `json:"accessionNumber"`
				PrimaryDocument []string `json:"primaryDocument"`
			} `json:"recent"`
		} `json:"filings"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode submissions: %w", err)
	}

	recent := data.Filings.Recent
	entityCIK := strings.TrimLeft(cik, "0")
	if entityCIK == "" {
		entityCIK = "0"
	}

	var results []FilingRef
	for i := range recent.Form {
		if !wanted[recent.Form[i]] {
			continue
		}
		if i >= len(recent.AccessionNumber) || i >= len(recent.FilingDate) {
			break
		}

		accession := recent.AccessionNumber[i]
		primaryDoc := ""
		if i < len(recent.PrimaryDocument) {
			primaryDoc = recent.PrimaryDocument[i]
		}

		results = append(results, FilingRef{
			AccessionNumber: accession,
			Form:            recent.Form[i],
			FilingDate:      recent.FilingDate[i],
			DocumentURL: fmt.Sprintf("%s/%s/%s/%s",
				archivesBase, entityCIK, strings.ReplaceAll(accession, "-", ""), primaryDoc),
		})
		if len(results) >= limit {
			break
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"cik":   cik,
		"count": len(results),
	}).Debug("Fetched recent filings")
	return results, nil
}

// ClassifyFiling classifies a filing as a dilution event.
//
// Shelf registration types (S-3, S-3/A) are auto-classified without
// fetching the document: a shelf registration is by definition a
// dilution-capacity event, so the fetch is skipped. 424B5 and 8-K are
// keyword-classified over the head of the document text.
func (c *Client) ClassifyFiling(ctx context.Context, filingType, docURL string) Classification {
	if filingType == "S-3" || filingType == "S-3/A" {
		return Classification{
			IsDilutionEvent: true,
			DilutionType:    "atm_shelf",
			Confidence:      0.7,
		}
	}

	if (filingType == "424B5" || filingType == "8-K") && docURL != "" {
		text, err := c.fetchDocumentText(ctx, docURL)
		if err != nil {
			c.logger.WithFields(map[string]interface{}{
				"url":   docURL,
				"error": err.Error(),
			}).Warn("Could not fetch document for classification")
			return Classification{}
		}
		return c.classifier.Classify(text)
	}

	return Classification{}
}

// fetchDocumentText downloads a filing document and returns the first
// classifyMaxChars of its visible text. Filing documents are HTML;
// goquery strips the markup so keyword patterns match prose, not tags.
func (c *Client) fetchDocumentText(ctx context.Context, docURL string) (string, error) {
	// Read a generous slice of the raw document; markup inflates the
	// byte count well past the text we keep.
	body, err := c.http.GetBody(ctx, docURL, 512*1024)
	if err != nil {
		return "", err
	}

	text := string(body)
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
		if stripped := strings.TrimSpace(doc.Text()); stripped != "" {
			text = stripped
		}
	}

	if len(text) > classifyMaxChars {
		text = text[:classifyMaxChars]
	}
	return text, nil
}

func zeroPadCIK(cik int64) string {
	return fmt.Sprintf("%0*d", cikWidth, cik)
}
