// Package scrape orchestrates the fetch-and-persist pipeline: a sequential
// pagination walker fans identifiers out to concurrent, rate-limited detail
// fetchers whose normalized results flow into the persistence sink.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weapply/jobharvest/internal/dedup"
	"github.com/weapply/jobharvest/internal/jobsearch"
	"github.com/weapply/jobharvest/internal/metrics"
	"github.com/weapply/jobharvest/internal/model"
	"github.com/weapply/jobharvest/internal/normalize"
	"github.com/weapply/jobharvest/internal/policy/ratelimit"
	"github.com/weapply/jobharvest/internal/policy/retry"
	"github.com/weapply/jobharvest/internal/storage"
)

// Source is the API surface the pipeline consumes.
type Source interface {
	ListingsSource
	DetailSource
}

// RecordExporter mirrors committed records into flat files. Optional.
type RecordExporter interface {
	Add(rec model.Record)
	Flush() ([]string, error)
}

// Config bounds one run.
type Config struct {
	Concurrency int
	MaxPages    int
}

// Runner owns the run-local state (counters, seen-set, run id) and drives
// one harvest from listings walk to final summary.
type Runner struct {
	source   Source
	limiter  *ratelimit.Limiter
	policy   *retry.Policy
	sink     storage.Sink
	exporter RecordExporter
	seen     dedup.Store
	cfg      Config

	runID    uuid.UUID
	counters *Counters
	fetcher  *Fetcher
	logger   *zap.Logger
}

// workItem is the handle passed from the walker to detail workers.
type workItem struct {
	slug      string
	viewCount json.RawMessage
}

// NewRunner wires a Runner. exporter may be nil; seen defaults to an
// in-memory store.
func NewRunner(
	source Source,
	limiter *ratelimit.Limiter,
	policy *retry.Policy,
	sink storage.Sink,
	exporter RecordExporter,
	seen dedup.Store,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if seen == nil {
		seen = dedup.NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.New()
	runLogger := logger.With(zap.String("run_id", runID.String()))
	counters := NewCounters()
	return &Runner{
		source:   source,
		limiter:  limiter,
		policy:   policy,
		sink:     sink,
		exporter: exporter,
		seen:     seen,
		cfg:      cfg,
		runID:    runID,
		counters: counters,
		fetcher:  NewFetcher(source, limiter, policy, counters, runLogger),
		logger:   runLogger,
	}
}

// RunID identifies this run in logs and exports.
func (r *Runner) RunID() uuid.UUID { return r.runID }

// Run walks the listings endpoint and processes every discovered item.
// Per-item failures are counted, never propagated; only pagination failure
// aborts the walk, and items already queued still drain before return.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	walker := NewWalker(r.source, r.policy, r.counters, r.cfg.MaxPages, r.logger)

	items := make(chan workItem, r.cfg.Concurrency*2)
	done := r.startWorkers(ctx, items)

	walkErr := walker.Walk(ctx, func(item jobsearch.ListingItem) error {
		select {
		case items <- workItem{slug: item.Slug, viewCount: item.ViewCount}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	close(items)
	<-done

	return r.finish(ctx, walkErr)
}

// RunSlugs processes an explicit set of slugs, skipping the listings walk.
func (r *Runner) RunSlugs(ctx context.Context, slugs []string) (Summary, error) {
	items := make(chan workItem, r.cfg.Concurrency*2)
	done := r.startWorkers(ctx, items)

	var feedErr error
feed:
	for _, slug := range slugs {
		select {
		case items <- workItem{slug: slug}:
		case <-ctx.Done():
			feedErr = ctx.Err()
			break feed
		}
	}
	close(items)
	<-done

	return r.finish(ctx, feedErr)
}

func (r *Runner) startWorkers(ctx context.Context, items <-chan workItem) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range items {
				if ctx.Err() != nil {
					continue
				}
				r.processItem(ctx, item)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// processItem runs one item through dedup, fetch, normalize and persist.
// Every failure is caught here at the item boundary.
func (r *Runner) processItem(ctx context.Context, item workItem) {
	fresh, err := r.seen.MarkIfNew(ctx, item.slug)
	if err != nil {
		// Dedup store trouble must not lose records; process as if new.
		r.logger.Warn("seen-set check failed", zap.String("slug", item.slug), zap.Error(err))
		fresh = true
	}
	if !fresh {
		r.counters.Duplicate()
		r.logger.Debug("skipping already-seen slug", zap.String("slug", item.slug))
		return
	}

	r.counters.Attempt()

	payload, attempts, err := r.fetcher.Fetch(ctx, item.slug)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			r.counters.Abort()
			return
		}
		kind := ClassifyFailure(err)
		r.counters.Failure(kind)
		r.logger.Error("detail fetch failed",
			zap.String("slug", item.slug),
			zap.String("kind", string(kind)),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return
	}

	rec, warnings := normalize.BuildRecord(payload, item.viewCount)
	for _, warn := range warnings {
		r.logger.Warn("normalization fallback applied",
			zap.String("slug", item.slug),
			zap.String("field", warn.Field),
			zap.String("value", warn.Value),
		)
	}

	if err := r.sink.UpsertJob(ctx, rec); err != nil {
		if errors.Is(err, context.Canceled) {
			r.counters.Abort()
			return
		}
		kind := ClassifyFailure(err)
		r.counters.Failure(kind)
		r.logger.Error("persist failed",
			zap.String("slug", item.slug),
			zap.Int("job_id", rec.Job.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveUpsert()

	if r.exporter != nil {
		r.exporter.Add(rec)
	}
	r.counters.Success()
	r.logger.Info("job persisted",
		zap.Int("job_id", rec.Job.ID),
		zap.String("slug", item.slug),
		zap.String("title", rec.Job.Title),
	)
}

// finish flushes exports, logs the summary, and decides the run's outcome.
func (r *Runner) finish(ctx context.Context, runErr error) (Summary, error) {
	if r.exporter != nil {
		paths, err := r.exporter.Flush()
		if err != nil {
			r.logger.Error("export flush failed", zap.Error(err))
		} else if len(paths) > 0 {
			r.logger.Info("exports written", zap.Strings("paths", paths))
		}
	}

	summary := r.counters.Snapshot()
	fields := []zap.Field{
		zap.Int64("pages", summary.Pages),
		zap.Int64("attempted", summary.Attempted),
		zap.Int64("succeeded", summary.Succeeded),
		zap.Int64("failed", summary.Failed),
		zap.Int64("aborted", summary.Aborted),
		zap.Int64("duplicates", summary.Duplicates),
		zap.Int64("retries", summary.Retries),
	}
	for _, kind := range summary.FailureKinds() {
		fields = append(fields, zap.Int64("failed_"+string(kind), summary.Failures[kind]))
	}
	r.logger.Info("run finished", fields...)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return summary, runErr
	}
	if ctx.Err() != nil {
		r.logger.Warn("run interrupted; committed records remain valid")
	}
	return summary, nil
}
