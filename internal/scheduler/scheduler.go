// Package scheduler wires up the cron job that periodically triggers
// harvest runs in long-lived mode.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HarvestFunc executes one harvest run.
type HarvestFunc func(ctx context.Context) error

// Scheduler wraps robfig/cron. Overlapping runs are skipped: if a tick fires
// while the previous harvest is still going, the tick is dropped.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	run     HarvestFunc
	running atomic.Bool
	logger  *zap.Logger
}

// New builds a Scheduler for the given cron spec, e.g. "@every 6h".
func New(spec string, run HarvestFunc, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(),
		spec:   spec,
		run:    run,
		logger: logger,
	}
}

// Start registers the job, runs one harvest immediately, and then lets cron
// take over until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("register cron spec %q: %w", s.spec, err)
	}

	s.tick(ctx)
	s.cron.Start()

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous harvest still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	if err := s.run(ctx); err != nil {
		s.logger.Error("scheduled harvest failed", zap.Error(err))
	}
}
