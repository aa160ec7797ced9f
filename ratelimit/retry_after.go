// Package ratelimit turns receiver throttling signals into retry times.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-webhooks/core"
)

const (
	DefaultMaxDelay  = 24 * time.Hour
	DefaultRetryHint = 5 * time.Second
)

// RetryAfterHinter honours Retry-After on 429 and 503 responses and the
// X-RateLimit-Reset header when a receiver reports no remaining quota.
// Hints are capped at MaxDelay so a hostile receiver cannot park a delivery
// forever.
type RetryAfterHinter struct {
	MaxDelay time.Duration
	// DefaultHint applies to a 429 that carries no usable header.
	DefaultHint time.Duration
}

func NewRetryAfterHinter() *RetryAfterHinter {
	return &RetryAfterHinter{
		MaxDelay:    DefaultMaxDelay,
		DefaultHint: DefaultRetryHint,
	}
}

func (h *RetryAfterHinter) RetryAt(resp core.TransportResponse, now time.Time) (time.Time, bool) {
	if h == nil {
		return time.Time{}, false
	}
	now = now.UTC()
	headers := http.Header(resp.Headers)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if delay, ok := parseRetryAfter(headers.Get("Retry-After"), now, h.maxDelay()); ok {
			return now.Add(h.cap(delay)), true
		}
	}
	if remaining, ok := parseHeaderInt(headers, "X-RateLimit-Remaining"); ok && remaining == 0 {
		if resetAt, ok := parseResetAt(headers); ok && resetAt.After(now) {
			return now.Add(h.cap(resetAt.Sub(now))), true
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return now.Add(h.cap(h.defaultHint())), true
	}
	return time.Time{}, false
}

func (h *RetryAfterHinter) cap(delay time.Duration) time.Duration {
	return min(delay, h.maxDelay())
}

func (h *RetryAfterHinter) maxDelay() time.Duration {
	if h.MaxDelay > 0 {
		return h.MaxDelay
	}
	return DefaultMaxDelay
}

func (h *RetryAfterHinter) defaultHint() time.Duration {
	if h.DefaultHint > 0 {
		return h.DefaultHint
	}
	return DefaultRetryHint
}

// parseRetryAfter accepts delay-seconds or an HTTP date. Delay-seconds are
// clamped to maximum before conversion so large values cannot overflow.
func parseRetryAfter(raw string, now time.Time, maximum time.Duration) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		if limit := int(maximum / time.Second); seconds > limit {
			return maximum, true
		}
		return time.Duration(seconds) * time.Second, true
	}
	retryAt, err := http.ParseTime(raw)
	if err != nil || !retryAt.After(now) {
		return 0, false
	}
	return retryAt.Sub(now), true
}

func parseHeaderInt(headers http.Header, key string) (int, bool) {
	value := strings.TrimSpace(headers.Get(key))
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// parseResetAt reads X-RateLimit-Reset as unix seconds.
func parseResetAt(headers http.Header) (time.Time, bool) {
	value := strings.TrimSpace(headers.Get("X-RateLimit-Reset"))
	if value == "" {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

var _ core.RetryHinter = (*RetryAfterHinter)(nil)
