// Package oracle is the correction oracle client: a free-text
// question goes out, a free-text answer comes back, and the answer is
// parsed for a dollar figure or the literal sentinel "UNKNOWN".
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hwahn/dilmon/pkg/config"
	"github.com/hwahn/dilmon/pkg/httputil"
	"github.com/hwahn/dilmon/pkg/logger"
)

// Client asks a natural-language lookup service to confirm or correct
// a suspect financial value.
type Client struct {
	http    *httputil.Client
	logger  *logger.Logger
	apiKey  string
	baseURL string
	model   string
}

// NewClient creates a new correction oracle client. Returns nil when
// no API key is configured; callers treat a nil client as "oracle
// unavailable" and skip correction.
func NewClient(cfg config.OracleConfig, log *logger.Logger) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	return &Client{
		http: httputil.New(log, 200*time.Millisecond).
			WithHeader("x-api-key", cfg.APIKey).
			WithHeader("anthropic-version", "2023-06-01"),
		logger:  log,
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}
}

// CorrectValue asks for the true value of a field that failed
// validation. It returns nil when the oracle cannot determine the
// value, meaning the caller should discard the field.
func (c *Client) CorrectValue(ctx context.Context, ticker, fieldLabel, fiscalPeriod string, currentValue float64) (*float64, error) {
	prompt := fmt.Sprintf(
		"What was %s's %s for fiscal quarter %s? "+
			"Our database currently shows %.0f which looks wrong. "+
			"Give me the correct number in dollars. Reply with JUST the number and "+
			"unit (e.g. '-9.6 million' or '203 million'). If you cannot find it, "+
			"reply 'UNKNOWN'.",
		ticker, fieldLabel, fiscalPeriod, currentValue,
	)

	answer, err := c.ask(ctx, prompt)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"field":  fieldLabel,
		"period": fiscalPeriod,
		"answer": strings.TrimSpace(answer),
	}).Info("Oracle response")

	if strings.Contains(strings.ToUpper(answer), "UNKNOWN") {
		return nil, nil
	}
	return ParseDollarAnswer(answer), nil
}

// ask sends one free-text question and returns the concatenated text
// of the reply.
func (c *Client) ask(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"model":      c.model,
		"max_tokens": 256,
		"tools": []map[string]string{
			{"type": "web_search_20250305", "name": "web_search"},
		},
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal oracle request: %w", err)
	}

	resp, err := c.http.Post(ctx, c.baseURL+"/v1/messages", "application/json", reqBody)
	if err != nil {
		return "", fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode oracle response: %w", err)
	}

	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

var answerRe = regexp.MustCompile(`(?i)(-?[\d.]+)\s*(billion|million|thousand|trillion)?`)

// ParseDollarAnswer extracts a dollar figure from free text like
// "-$9.6 million" or "203 billion". Returns nil when no numeric
// pattern is present.
func ParseDollarAnswer(text string) *float64 {
	text = strings.ReplaceAll(text, ",", "")
	text = strings.ReplaceAll(text, "$", "")

	m := answerRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}

	switch strings.ToLower(m[2]) {
	case "trillion":
		num *= 1e12
	case "billion":
		num *= 1e9
	case "million":
		num *= 1e6
	case "thousand":
		num *= 1e3
	}
	return &num
}
