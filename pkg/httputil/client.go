package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hwahn/dilmon/pkg/logger"
)

// ErrDataUnavailable is returned once all retry attempts are exhausted.
// Callers treat it as "the upstream could not serve this request", not
// as a bug.
var ErrDataUnavailable = errors.New("upstream data unavailable")

// Client is an HTTP client wrapper with a minimum inter-call delay and
// exponential backoff retry. All external API calls go through it.
//
// The limiter is a field on the client, owned by whoever constructed
// it; there is no package-level state. A single client instance
// serializes its calls through the limiter, which is what keeps each
// upstream under its rate cap.
type Client struct {
	httpClient  *http.Client
	logger      *logger.Logger
	limiter     *rate.Limiter
	retryConfig RetryConfig
	headers     map[string]string
}

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Retryable reports whether a response status is worth another
	// attempt. When nil, DefaultRetryable is used.
	Retryable func(statusCode int) bool
}

// DefaultRetryable retries on 5xx server errors and 429 Too Many Requests.
func DefaultRetryable(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}

// New creates a client that waits at least minDelay between calls.
func New(log *logger.Logger, minDelay time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  log,
		limiter: rate.NewLimiter(rate.Every(minDelay), 1),
		retryConfig: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     10 * time.Second,
		},
	}
}

// WithRetry overrides the retry schedule.
func (c *Client) WithRetry(cfg RetryConfig) *Client {
	c.retryConfig = cfg
	return c
}

// WithHeader sets a header applied to every request (e.g. User-Agent).
func (c *Client) WithHeader(key, value string) *Client {
	if c.headers == nil {
		c.headers = make(map[string]string)
	}
	c.headers[key] = value
	return c
}

// Get performs a GET request with rate limiting and retry.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, url, "", nil)
}

// Post performs a POST request with rate limiting and retry.
func (c *Client) Post(ctx context.Context, url string, contentType string, body []byte) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, url, contentType, body)
}

// GetBody performs a GET and reads up to maxBytes of the response body.
// maxBytes <= 0 reads the whole body.
func (c *Client) GetBody(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// do executes the request with the limiter and retry schedule. The
// limiter wait runs before every attempt, success or failure, so the
// minimum gap holds even across retries.
func (c *Client) do(ctx context.Context, method, url, contentType string, body []byte) (*http.Response, error) {
	retryable := c.retryConfig.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	delay := c.retryConfig.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		req, err := c.newRequest(ctx, method, url, contentType, body)
		if err != nil {
			return nil, err
		}

		c.logger.WithFields(map[string]interface{}{
			"method":  method,
			"url":     url,
			"attempt": attempt,
		}).Debug("HTTP request")

		resp, err := c.httpClient.Do(req)
		if err == nil && !retryable(resp.StatusCode) {
			if resp.StatusCode >= 400 {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %s returned status %d", ErrDataUnavailable, url, resp.StatusCode)
			}
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp.Body.Close()
		}

		if attempt == c.retryConfig.MaxAttempts {
			break
		}

		c.logger.WithFields(map[string]interface{}{
			"url":     url,
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   lastErr.Error(),
		}).Warn("Retrying HTTP request")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.retryConfig.MaxDelay {
			delay = c.retryConfig.MaxDelay
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"url":      url,
		"attempts": c.retryConfig.MaxAttempts,
		"error":    lastErr.Error(),
	}).Error("HTTP request failed after retries")

	return nil, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, url, lastErr)
}

func (c *Client) newRequest(ctx context.Context, method, url, contentType string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = newByteReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// newByteReader returns a fresh reader per attempt so retried POST
// bodies are replayed from the start.
func newByteReader(b []byte) io.Reader {
	return &byteReader{data: b}
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
