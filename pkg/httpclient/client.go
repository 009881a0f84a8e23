// Package httpclient provides the retrying HTTP client used for all
// outbound endpoint traffic (completions, embeddings).
//
// Retries are driven by a per-status strategy: rate-limit responses honor
// server-provided reset hints with exponential backoff as fallback, transient
// server errors get a small number of quick retries, everything else fails
// fast. Request bodies are replayed via Request.GetBody.
package httpclient

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// RetryStrategy classifies how a failed request should be retried.
type RetryStrategy int

const (
	// NoRetry fails immediately.
	NoRetry RetryStrategy = iota
	// QuickRetry retries up to twice with short fixed delays (5xx).
	QuickRetry
	// BackoffRetry honors rate-limit headers, falling back to exponential
	// backoff with jitter (429, 503).
	BackoffRetry
)

// StrategyFunc selects a retry strategy for an HTTP status code.
type StrategyFunc func(statusCode int) RetryStrategy

// HeaderParser extracts rate-limit hints from response headers.
type HeaderParser func(http.Header) RateLimitInfo

// Client wraps http.Client with retry behavior.
type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	headerParser HeaderParser
	strategyFunc StrategyFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the underlying client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// WithMaxRetries bounds the number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBaseDelay sets the base backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithHeaderParser installs a rate-limit header parser.
func WithHeaderParser(p HeaderParser) Option {
	return func(c *Client) { c.headerParser = p }
}

// WithStrategy replaces the status→strategy mapping.
func WithStrategy(f StrategyFunc) Option {
	return func(c *Client) { c.strategyFunc = f }
}

// New builds a client. Defaults: 60s timeout, 3 retries, 1s base delay,
// OpenAI-style header parsing.
func New(opts ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		maxRetries:   3,
		baseDelay:    time.Second,
		headerParser: ParseRateLimitHeaders,
		strategyFunc: DefaultStrategy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultStrategy maps status codes to retry strategies.
func DefaultStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return BackoffRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return QuickRetry
	default:
		return NoRetry
	}
}

// Do executes the request, retrying per strategy. The caller owns the
// response body of the returned response.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if req.GetBody == nil {
				return lastResp, lastErr
			}
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("httpclient: recreate body for retry: %w", err)
			}
			req.Body = body
		}

		resp, strategy, info, err := c.attempt(req)
		if err == nil || strategy == NoRetry {
			return resp, err
		}
		lastResp, lastErr = resp, err

		if attempt >= c.maxRetries {
			break
		}

		delay := c.delayFor(strategy, attempt, info)
		if delay <= 0 {
			return resp, err
		}

		status := 0
		if resp != nil {
			status = resp.StatusCode
			_ = resp.Body.Close()
		}
		slog.Debug("Retrying request",
			"url", req.URL.Path,
			"status", status,
			"attempt", attempt+1,
			"delay", delay)

		if err := sleep(req.Context(), delay); err != nil {
			return nil, err
		}
	}

	status := 0
	if lastResp != nil {
		status = lastResp.StatusCode
	}
	return lastResp, &RetryableError{
		StatusCode: status,
		Message:    fmt.Sprintf("max retries (%d) exceeded", c.maxRetries),
		Err:        lastErr,
	}
}

func (c *Client) attempt(req *http.Request) (*http.Response, RetryStrategy, RateLimitInfo, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NoRetry, RateLimitInfo{}, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, NoRetry, RateLimitInfo{}, nil
	}

	var info RateLimitInfo
	if c.headerParser != nil {
		info = c.headerParser(resp.Header)
	}
	return resp, c.strategyFunc(resp.StatusCode), info, fmt.Errorf("HTTP %d", resp.StatusCode)
}

func (c *Client) delayFor(strategy RetryStrategy, attempt int, info RateLimitInfo) time.Duration {
	switch strategy {
	case BackoffRetry:
		if info.RetryAfter > 0 {
			return info.RetryAfter
		}
		if info.ResetAt > 0 {
			if d := time.Until(time.Unix(info.ResetAt, 0)); d > 0 {
				return d
			}
		}
		backoff := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		return backoff + time.Duration(float64(backoff)*0.1)
	case QuickRetry:
		if attempt >= 2 {
			return 0
		}
		return time.Duration(attempt+1) * time.Second
	default:
		return 0
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
