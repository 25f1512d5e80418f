// Package retry implements the backoff state machine used for transient
// fetch failures.
package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/weapply/jobharvest/internal/jobsearch"
)

// Decision is the outcome of evaluating one failed attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy computes retry decisions as a pure function of the attempt number
// and the error kind. It holds no per-request state and is safe for
// concurrent use.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// Config tunes the policy. Zero fields fall back to defaults.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// New builds a Policy with sane defaults.
func New(cfg Config) *Policy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	return &Policy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
	}
}

// MaxAttempts returns the configured attempt bound.
func (p *Policy) MaxAttempts() int { return p.maxAttempts }

// Decide evaluates the error from attempt n (zero-based). Transient failures
// below the attempt bound retry after a jittered exponential delay; anything
// else, including permanent client errors, terminates with zero delay.
func (p *Policy) Decide(attempt int, err error) Decision {
	if err == nil {
		return Decision{}
	}
	if attempt >= p.maxAttempts-1 {
		return Decision{}
	}
	if !jobsearch.IsRetryable(err) {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.backoff(attempt)}
}

// backoff returns base * 2^attempt clamped to maxDelay, with half the value
// randomized as jitter so concurrent retries do not synchronize.
func (p *Policy) backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

// Wait sleeps for the decision's delay while honoring ctx cancellation.
func Wait(ctx context.Context, d Decision) error {
	if d.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
