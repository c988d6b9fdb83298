package ingestion

import (
	"context"
	"math"
	"time"
)

// RetryPolicy controls how failed transports are restarted.
type RetryPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultRetryPolicy returns a sensible default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     60 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// Backoff computes the wait before restart attempt n (zero-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	duration := time.Duration(backoff)
	if p.Jitter {
		// Time-based jitter to avoid synchronized reconnect storms.
		nanos := time.Now().UnixNano()
		jitter := time.Duration(float64(duration) * 0.1 * (2*float64(nanos%1000)/1000.0 - 1))
		duration += jitter
	}
	return duration
}

// Wait sleeps for the attempt's backoff, returning early on cancellation.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.Backoff(attempt)):
		return nil
	}
}
