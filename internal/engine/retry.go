package engine

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls publish retry behavior.
type RetryPolicy struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64

	// jitter returns a fraction in [0, 1). Overridable in tests.
	jitter func() float64
}

// DefaultRetryPolicy is suitable for most publish calls.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     30 * time.Second,
	Multiplier:  2.0,
}

// ShouldRetry reports whether a failed attempt should be re-attempted.
// Only transient and rate-limit failures are retried, and only while the
// attempt budget lasts. Validation and auth errors are never retried.
func (p RetryPolicy) ShouldRetry(attempt int, kind ErrorKind) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return kind.Retryable()
}

// BackoffDelay returns the wait before attempt+1: InitialWait doubling per
// attempt (by Multiplier), capped at MaxWait, plus up to 25% random jitter
// so items sharing a platform don't re-attempt in lockstep.
func (p RetryPolicy) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := time.Duration(float64(p.InitialWait) * math.Pow(p.Multiplier, float64(attempt-1)))
	if wait > p.MaxWait || wait <= 0 {
		wait = p.MaxWait
	}
	j := p.jitter
	if j == nil {
		j = rand.Float64
	}
	return wait + time.Duration(j()*0.25*float64(wait))
}
