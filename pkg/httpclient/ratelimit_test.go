package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRateLimitHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		check   func(t *testing.T, info RateLimitInfo)
	}{
		{
			name:    "empty_headers",
			headers: map[string]string{},
			check: func(t *testing.T, info RateLimitInfo) {
				if info.RetryAfter != 0 || info.ResetAt != 0 {
					t.Errorf("expected zero info, got %+v", info)
				}
			},
		},
		{
			name:    "retry_after_seconds",
			headers: map[string]string{"retry-after": "30"},
			check: func(t *testing.T, info RateLimitInfo) {
				if info.RetryAfter != 30*time.Second {
					t.Errorf("RetryAfter = %v, want 30s", info.RetryAfter)
				}
			},
		},
		{
			name:    "remaining_quota",
			headers: map[string]string{
				"x-ratelimit-remaining-requests": "42",
				"x-ratelimit-remaining-tokens":   "9000",
			},
			check: func(t *testing.T, info RateLimitInfo) {
				if info.RequestsRemaining != 42 {
					t.Errorf("RequestsRemaining = %d, want 42", info.RequestsRemaining)
				}
				if info.TokensRemaining != 9000 {
					t.Errorf("TokensRemaining = %d, want 9000", info.TokensRemaining)
				}
			},
		},
		{
			name:    "reset_duration",
			headers: map[string]string{"x-ratelimit-reset-requests": "2s"},
			check: func(t *testing.T, info RateLimitInfo) {
				want := time.Now().Add(2 * time.Second).Unix()
				if info.ResetAt < want-1 || info.ResetAt > want+1 {
					t.Errorf("ResetAt = %d, want ~%d", info.ResetAt, want)
				}
			},
		},
		{
			name:    "malformed_values_ignored",
			headers: map[string]string{
				"retry-after":                    "soon",
				"x-ratelimit-remaining-requests": "n/a",
			},
			check: func(t *testing.T, info RateLimitInfo) {
				if info.RetryAfter != 0 {
					t.Errorf("RetryAfter = %v, want 0 for malformed value", info.RetryAfter)
				}
				if info.RequestsRemaining != 0 {
					t.Errorf("RequestsRemaining = %d, want 0 for malformed value", info.RequestsRemaining)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			tt.check(t, ParseRateLimitHeaders(h))
		})
	}
}
