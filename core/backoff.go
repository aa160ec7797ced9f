package core

import (
	"time"

	"github.com/jpillora/backoff"
)

// ExponentialBackoffPolicy spaces retries as Min*Factor^(attempts-1), capped
// at Max.
type ExponentialBackoffPolicy struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
}

func NewExponentialBackoffPolicy(cfg RetryConfig) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{
		Min:    cfg.InitialBackoff,
		Max:    cfg.MaxBackoff,
		Factor: cfg.Factor,
	}
}

func (p ExponentialBackoffPolicy) Delay(attempts int) time.Duration {
	b := &backoff.Backoff{
		Min:    p.Min,
		Max:    p.Max,
		Factor: p.Factor,
	}
	if b.Min <= 0 {
		b.Min = DefaultRetryInitialBackoff
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}
	if b.Factor < 1 {
		b.Factor = DefaultRetryFactor
	}
	if attempts < 1 {
		attempts = 1
	}
	return b.ForAttempt(float64(attempts - 1))
}

func (p ExponentialBackoffPolicy) NextAttemptAt(attempts int, now time.Time) time.Time {
	return now.UTC().Add(p.Delay(attempts))
}
