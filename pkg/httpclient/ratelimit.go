package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitInfo carries rate-limit hints parsed from response headers.
type RateLimitInfo struct {
	// RetryAfter is the server-requested wait, if any.
	RetryAfter time.Duration
	// ResetAt is the unix time at which the limit window resets.
	ResetAt int64
	// RequestsRemaining and TokensRemaining report remaining quota.
	RequestsRemaining int
	TokensRemaining   int
}

// ParseRateLimitHeaders reads OpenAI-compatible rate-limit headers.
// All fields default to zero when a header is absent or malformed.
func ParseRateLimitHeaders(h http.Header) RateLimitInfo {
	info := RateLimitInfo{}

	if v := h.Get("retry-after"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			info.RetryAfter = time.Duration(secs) * time.Second
		} else if t, err := http.ParseTime(v); err == nil {
			if d := time.Until(t); d > 0 {
				info.RetryAfter = d
			}
		}
	}

	if v := h.Get("x-ratelimit-reset-requests"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			info.ResetAt = time.Now().Add(d).Unix()
		} else if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			info.ResetAt = unix
		}
	}

	if v := h.Get("x-ratelimit-remaining-requests"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.RequestsRemaining = n
		}
	}
	if v := h.Get("x-ratelimit-remaining-tokens"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.TokensRemaining = n
		}
	}

	return info
}
