package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/weapply/jobharvest/internal/api"
	"github.com/weapply/jobharvest/internal/dedup"
	"github.com/weapply/jobharvest/internal/jobsearch"
	"github.com/weapply/jobharvest/internal/logging"
	"github.com/weapply/jobharvest/internal/metrics"
	"github.com/weapply/jobharvest/internal/policy/ratelimit"
	"github.com/weapply/jobharvest/internal/policy/retry"
	"github.com/weapply/jobharvest/internal/scheduler"
	"github.com/weapply/jobharvest/internal/scrape"
	"github.com/weapply/jobharvest/internal/storage/export"
	"github.com/weapply/jobharvest/internal/storage/postgres"
)

// harvestFlags carries the command-line overrides for a harvest run.
type harvestFlags struct {
	maxPages    int
	slugs       []string
	delayMin    float64
	delayMax    float64
	concurrency int
	testMode    bool
	doExport    bool
	cronSpec    string
}

// newHarvestCmd creates the 'harvest' subcommand, the main operation of the
// tool: walk listings, fetch details, normalize, and persist.
func newHarvestCmd() *cobra.Command {
	flags := &harvestFlags{}

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Runs a full harvest of the vacancies API into Postgres",
		Long: `Walks the paginated listings endpoint page by page, fetches every
discovered vacancy's detail document concurrently, and upserts the
normalized records into Postgres. Individual fetch or persist failures
are counted and reported but never abort the run.

With --slugs the listings walk is skipped and only the named vacancies
are fetched. With --cron the harvest repeats on the given schedule.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applyFlagOverrides(cmd, flags)
			return runHarvest(cmd.Context(), flags)
		},
	}

	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "stop after N listing pages (0 = all)")
	cmd.Flags().StringSliceVar(&flags.slugs, "slugs", nil, "harvest only these vacancy slugs, skipping the listings walk")
	cmd.Flags().Float64Var(&flags.delayMin, "delay-min", 0, "minimum politeness delay between requests, in seconds")
	cmd.Flags().Float64Var(&flags.delayMax, "delay-max", 0, "maximum politeness delay between requests, in seconds")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "number of concurrent detail fetchers")
	cmd.Flags().BoolVar(&flags.testMode, "test", false, "smoke-test mode: first listing page only")
	cmd.Flags().BoolVar(&flags.doExport, "export", false, "also mirror committed records to timestamped JSON/CSV files")
	cmd.Flags().StringVar(&flags.cronSpec, "cron", "", "run on a schedule (e.g. \"@every 6h\") instead of once")

	return cmd
}

// applyFlagOverrides folds explicitly-set flags into the loaded config.
func applyFlagOverrides(cmd *cobra.Command, flags *harvestFlags) {
	if cmd.Flags().Changed("max-pages") {
		cfg.Scrape.MaxPages = flags.maxPages
	}
	if cmd.Flags().Changed("delay-min") {
		cfg.Scrape.DelayMinSeconds = flags.delayMin
	}
	if cmd.Flags().Changed("delay-max") {
		cfg.Scrape.DelayMaxSeconds = flags.delayMax
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Scrape.Concurrency = flags.concurrency
	}
	if cmd.Flags().Changed("export") {
		cfg.Export.Enabled = flags.doExport
	}
	if flags.testMode {
		cfg.Scrape.MaxPages = 1
	}
}

func runHarvest(parent context.Context, flags *harvestFlags) error {
	logger, closeLog, err := logging.NewRunLogger(cfg.Logging.Development, cfg.Logging.Dir, time.Now())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	store, err := postgres.NewStore(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer store.Close()

	if err := store.Setup(ctx); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	client := jobsearch.New(jobsearch.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.Timeout(),
		UserAgent: cfg.API.UserAgent,
		Locale:    cfg.API.Locale,
	}, logger)

	delayMin, delayMax := cfg.DelayRange()
	limiter := ratelimit.New(ratelimit.Config{
		Concurrency: cfg.Scrape.Concurrency,
		DelayMin:    delayMin,
		DelayMax:    delayMax,
		MaxRPS:      cfg.Scrape.MaxRPS,
	})

	baseDelay, maxDelay := cfg.BackoffBounds()
	policy := retry.New(retry.Config{
		MaxAttempts: cfg.HTTP.MaxRetries,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
	})

	newSeen, closeSeen, err := buildSeenFactory(ctx)
	if err != nil {
		return err
	}
	defer closeSeen()

	harvestOnce := func(ctx context.Context) error {
		return harvestRun(ctx, client, limiter, policy, store, newSeen(), flags.slugs, logger)
	}

	if flags.cronSpec != "" {
		if cfg.Metrics.Enabled {
			srv := api.NewServer(cfg.Metrics.Port, logger)
			srv.Start()
			defer func() {
				shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutCtx)
			}()
		}
		return scheduler.New(flags.cronSpec, harvestOnce, logger).Start(ctx)
	}

	return harvestOnce(ctx)
}

// harvestRun performs a single end-to-end harvest with a fresh Runner so
// that counters, the run id, and export files are per-run.
func harvestRun(
	ctx context.Context,
	client *jobsearch.Client,
	limiter *ratelimit.Limiter,
	policy *retry.Policy,
	store *postgres.Store,
	seen dedup.Store,
	slugs []string,
	logger *zap.Logger,
) error {
	before, err := store.JobCount(ctx)
	if err != nil {
		return fmt.Errorf("count jobs: %w", err)
	}

	client.Prime(ctx)

	var exporter scrape.RecordExporter
	if cfg.Export.Enabled {
		exp, err := export.New(cfg.Export.Dir, time.Now())
		if err != nil {
			return fmt.Errorf("init exporter: %w", err)
		}
		exporter = exp
	}

	runner := scrape.NewRunner(client, limiter, policy, store, exporter, seen, scrape.Config{
		Concurrency: cfg.Scrape.Concurrency,
		MaxPages:    cfg.Scrape.MaxPages,
	}, logger)

	var summary scrape.Summary
	if len(slugs) > 0 {
		summary, err = runner.RunSlugs(ctx, slugs)
	} else {
		summary, err = runner.Run(ctx)
	}
	if err != nil {
		var fatal *scrape.FatalPaginationError
		if errors.As(err, &fatal) {
			return fmt.Errorf("pagination aborted: %w", err)
		}
		return err
	}

	after, countErr := store.JobCount(ctx)
	if countErr != nil {
		logger.Warn("Failed to count jobs after run", zap.Error(countErr))
	} else {
		logger.Info("Database totals",
			zap.String("run_id", runner.RunID().String()),
			zap.Int64("jobs_before", before),
			zap.Int64("jobs_after", after),
			zap.Int64("jobs_added", after-before),
			zap.Int64("records_upserted", summary.Succeeded))
	}

	return nil
}

// buildSeenFactory returns a constructor for each run's seen-slug store.
// Without Redis every run gets a fresh in-memory set: a scheduled run must
// re-harvest everything, not skip slugs an earlier tick already saw. With
// Redis the same store is shared on purpose, and its TTL decides how long a
// slug stays deduplicated across runs and processes.
func buildSeenFactory(ctx context.Context) (func() dedup.Store, func(), error) {
	if cfg.Redis.URL == "" {
		return func() dedup.Store { return dedup.NewMemoryStore() }, func() {}, nil
	}
	ttl := time.Duration(cfg.Redis.SeenTTLHrs) * time.Hour
	rs, err := dedup.NewRedisStore(ctx, cfg.Redis.URL, ttl)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return func() dedup.Store { return rs }, func() { _ = rs.Close() }, nil
}
