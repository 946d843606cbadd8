package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwahn/dilmon/pkg/logger"
)

func fastRetry(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(logger.NewNop(), 0).WithRetry(fastRetry(3))

	body, err := c.GetBody(context.Background(), srv.URL, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGet_ExhaustedRetriesReturnErrDataUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(logger.NewNop(), 0).WithRetry(fastRetry(2))

	_, err := c.Get(context.Background(), srv.URL)
	assert.True(t, errors.Is(err, ErrDataUnavailable))
}

func TestGet_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(logger.NewNop(), 0).WithRetry(fastRetry(3))

	_, err := c.Get(context.Background(), srv.URL)
	assert.True(t, errors.Is(err, ErrDataUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx is not retryable")
}

func TestGet_TooManyRequestsIsRetryable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(logger.NewNop(), 0).WithRetry(fastRetry(2))

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMinDelayBetweenCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	minDelay := 50 * time.Millisecond
	c := New(logger.NewNop(), minDelay)

	start := time.Now()
	for i := 0; i < 3; i++ {
		resp, err := c.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	// Three calls need at least two full gaps.
	assert.GreaterOrEqual(t, time.Since(start), 2*minDelay)
}

func TestWithHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dilmon test@example.com", r.Header.Get("User-Agent"))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(logger.NewNop(), 0).WithHeader("User-Agent", "dilmon test@example.com")

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestPost_BodyReplayedOnRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, 16)
		n, _ := r.Body.Read(body)
		assert.Equal(t, "payload", string(body[:n]))

		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(logger.NewNop(), 0).WithRetry(fastRetry(2))

	resp, err := c.Post(context.Background(), srv.URL, "text/plain", []byte("payload"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetBody_TruncatesAtMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	c := New(logger.NewNop(), 0)

	body, err := c.GetBody(context.Background(), srv.URL, 1024)
	require.NoError(t, err)
	assert.Len(t, body, 1024)
}
