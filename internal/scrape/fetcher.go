package scrape

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/weapply/jobharvest/internal/jobsearch"
	"github.com/weapply/jobharvest/internal/metrics"
	"github.com/weapply/jobharvest/internal/policy/ratelimit"
	"github.com/weapply/jobharvest/internal/policy/retry"
)

// DetailSource fetches the full record for one slug.
type DetailSource interface {
	FetchDetail(ctx context.Context, slug string) (*jobsearch.JobPayload, error)
}

// Fetcher retrieves detail records under the rate limiter's permit pool,
// retrying transient failures per the retry policy. Many Fetch calls run
// concurrently; the limiter bounds how many are actually in flight.
type Fetcher struct {
	source   DetailSource
	limiter  *ratelimit.Limiter
	policy   *retry.Policy
	counters *Counters
	logger   *zap.Logger
}

// NewFetcher builds a Fetcher.
func NewFetcher(
	source DetailSource,
	limiter *ratelimit.Limiter,
	policy *retry.Policy,
	counters *Counters,
	logger *zap.Logger,
) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		source:   source,
		limiter:  limiter,
		policy:   policy,
		counters: counters,
		logger:   logger,
	}
}

// Fetch retrieves one detail record. The returned attempts value counts how
// many requests were issued; on exhaustion the last typed error is returned
// for the caller to log and skip.
func (f *Fetcher) Fetch(ctx context.Context, slug string) (*jobsearch.JobPayload, int, error) {
	attempts := 0
	var lastErr error

	for attempt := 0; ; attempt++ {
		payload, err := f.fetchOnce(ctx, slug)
		attempts++
		if err == nil {
			return payload, attempts, nil
		}
		lastErr = err

		decision := f.policy.Decide(attempt, err)
		if !decision.Retry {
			break
		}
		f.counters.Retries(1)
		metrics.ObserveRetry()
		f.logger.Warn("detail fetch retrying",
			zap.String("slug", slug),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", decision.Delay),
			zap.Error(err),
		)
		if werr := retry.Wait(ctx, decision); werr != nil {
			return nil, attempts, werr
		}
	}
	return nil, attempts, lastErr
}

// fetchOnce performs a single rate-limited request. The permit is released
// unconditionally, so a failed or canceled request never leaks one.
func (f *Fetcher) fetchOnce(ctx context.Context, slug string) (*jobsearch.JobPayload, error) {
	release, err := f.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	metrics.IncInFlight()
	defer metrics.DecInFlight()

	start := time.Now()
	payload, err := f.source.FetchDetail(ctx, slug)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveDetail(string(jobsearch.KindOf(err)), elapsed)
		return nil, err
	}
	metrics.ObserveDetail("ok", elapsed)
	return payload, nil
}
