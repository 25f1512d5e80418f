package scrape

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/weapply/jobharvest/internal/jobsearch"
	"github.com/weapply/jobharvest/internal/metrics"
	"github.com/weapply/jobharvest/internal/policy/retry"
)

// ListingsSource fetches one page of the listings endpoint.
type ListingsSource interface {
	FetchListings(ctx context.Context, cursor jobsearch.Cursor) (jobsearch.ListingsPage, error)
}

// FatalPaginationError marks an unrecoverable listings failure. The walker
// cannot guess the next cursor, so the run aborts; records already committed
// remain valid.
type FatalPaginationError struct {
	Cursor jobsearch.Cursor
	Err    error
}

func (e *FatalPaginationError) Error() string {
	return fmt.Sprintf("pagination failed at %s: %v", e.Cursor, e.Err)
}

func (e *FatalPaginationError) Unwrap() error { return e.Err }

// Walker drives the listings endpoint forward page by page. Pages are
// fetched strictly in cursor order; the sequence is finite and not
// restartable.
type Walker struct {
	source   ListingsSource
	policy   *retry.Policy
	counters *Counters
	maxPages int
	logger   *zap.Logger
}

// NewWalker builds a Walker. maxPages <= 0 means unbounded.
func NewWalker(source ListingsSource, policy *retry.Policy, counters *Counters, maxPages int, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{
		source:   source,
		policy:   policy,
		counters: counters,
		maxPages: maxPages,
		logger:   logger,
	}
}

// Walk invokes emit for every valid listing item, in page order, until the
// server signals the end, the page bound is hit, or ctx is canceled. A page
// fetch that exhausts retries returns a FatalPaginationError.
func (w *Walker) Walk(ctx context.Context, emit func(item jobsearch.ListingItem) error) error {
	var cursor jobsearch.Cursor
	pages := 0

	for {
		if w.maxPages > 0 && pages >= w.maxPages {
			w.logger.Info("reached max pages bound", zap.Int("pages", pages))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := w.fetchPage(ctx, cursor)
		if err != nil {
			return &FatalPaginationError{Cursor: cursor, Err: err}
		}
		pages++
		w.counters.PageConsumed()
		metrics.ObservePage()
		w.logger.Info("listings page fetched",
			zap.String("cursor", cursor.String()),
			zap.Int("items", len(page.Items)),
		)

		if len(page.Items) == 0 {
			w.logger.Info("empty listings page, stopping")
			return nil
		}

		for _, item := range page.Items {
			if !item.Valid() {
				w.logger.Warn("skipping invalid listing item",
					zap.Int("id", item.ID), zap.String("slug", item.Slug))
				continue
			}
			if err := emit(item); err != nil {
				return err
			}
		}

		next, ok, err := jobsearch.ParseNextCursor(page.Next)
		if err != nil {
			return &FatalPaginationError{Cursor: cursor, Err: err}
		}
		if !ok {
			w.logger.Info("no continuation token, stopping")
			return nil
		}
		cursor = next
	}
}

func (w *Walker) fetchPage(ctx context.Context, cursor jobsearch.Cursor) (jobsearch.ListingsPage, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		page, err := w.source.FetchListings(ctx, cursor)
		if err == nil {
			return page, nil
		}
		lastErr = err

		decision := w.policy.Decide(attempt, err)
		if !decision.Retry {
			break
		}
		w.counters.Retries(1)
		metrics.ObserveRetry()
		w.logger.Warn("listings fetch retrying",
			zap.String("cursor", cursor.String()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", decision.Delay),
			zap.Error(err),
		)
		if err := retry.Wait(ctx, decision); err != nil {
			return jobsearch.ListingsPage{}, err
		}
	}
	return jobsearch.ListingsPage{}, lastErr
}
