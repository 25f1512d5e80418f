// Package ratelimit enforces the politeness constraints on outbound API
// requests: a bounded permit pool for in-flight concurrency and a randomized
// delay between successive request starts.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config controls the limiter.
type Config struct {
	// Concurrency caps simultaneously outstanding requests.
	Concurrency int
	// DelayMin/DelayMax bound the randomized inter-request delay.
	DelayMin time.Duration
	DelayMax time.Duration
	// MaxRPS optionally layers a steady request-rate ceiling on top of the
	// randomized delay. Zero disables it.
	MaxRPS float64
}

// Limiter hands out permits for outbound requests. Acquire may suspend the
// caller until a permit frees and the politeness delay has elapsed; the
// returned release func must always be called and is safe to call twice.
type Limiter struct {
	permits chan struct{}
	ceiling *rate.Limiter

	mu        sync.Mutex
	rng       *rand.Rand
	delayMin  time.Duration
	delaySpan time.Duration
	nextStart time.Time
}

// New builds a Limiter.
func New(cfg Config) *Limiter {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.DelayMin < 0 {
		cfg.DelayMin = 0
	}
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	var ceiling *rate.Limiter
	if cfg.MaxRPS > 0 {
		ceiling = rate.NewLimiter(rate.Limit(cfg.MaxRPS), 1)
	}
	return &Limiter{
		permits:   make(chan struct{}, cfg.Concurrency),
		ceiling:   ceiling,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		delayMin:  cfg.DelayMin,
		delaySpan: cfg.DelayMax - cfg.DelayMin,
	}
}

// Acquire blocks until a permit is free and the inter-request delay has
// passed, or until ctx is done. On success it returns a release func.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.permits <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire permit: %w", ctx.Err())
	}

	release := l.releaseFunc()
	if err := l.waitPoliteness(ctx); err != nil {
		release()
		return nil, err
	}
	if l.ceiling != nil {
		if err := l.ceiling.Wait(ctx); err != nil {
			release()
			return nil, fmt.Errorf("rate ceiling wait: %w", err)
		}
	}
	return release, nil
}

// InFlight returns the number of currently held permits.
func (l *Limiter) InFlight() int {
	return len(l.permits)
}

func (l *Limiter) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() { <-l.permits })
	}
}

// waitPoliteness schedules this request start at least a randomized delay
// after the previous one. Scheduling is done under the lock; the sleep is
// not, so concurrent acquirers queue up evenly spaced start slots.
func (l *Limiter) waitPoliteness(ctx context.Context) error {
	if l.delayMin <= 0 && l.delaySpan <= 0 {
		return nil
	}

	l.mu.Lock()
	delay := l.delayMin
	if l.delaySpan > 0 {
		delay += time.Duration(l.rng.Int63n(int64(l.delaySpan) + 1))
	}
	now := time.Now()
	start := l.nextStart
	if start.Before(now) {
		start = now
	}
	l.nextStart = start.Add(delay)
	l.mu.Unlock()

	wait := time.Until(start)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("politeness wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
