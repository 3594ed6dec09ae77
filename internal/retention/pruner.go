// Package retention periodically deletes old analysis history.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kalambet/cvmatch/internal/logger"
)

// DefaultSpec runs the prune job once an hour.
const DefaultSpec = "@every 1h"

// Pruner is the storage operation the job needs.
type Pruner interface {
	PruneAnalyses(before time.Time) (int64, error)
}

// Scheduler wraps robfig/cron and runs the prune job.
type Scheduler struct {
	cron   *cron.Cron
	store  Pruner
	maxAge time.Duration
	spec   string
	logger *zap.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// New creates a Scheduler that removes analyses older than maxAge. An empty
// spec selects DefaultSpec.
func New(store Pruner, maxAge time.Duration, spec string, log *zap.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSpec
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cron.DiscardLogger)),
		store:  store,
		maxAge: maxAge,
		spec:   spec,
		logger: logger.OrNop(log),
		now:    time.Now,
	}
}

// Start registers the job and starts the scheduler. One prune runs
// immediately so stale rows go away without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.logger.Info("history retention started", zap.String("spec", s.spec), zap.Duration("max_age", s.maxAge))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	return nil
}

// Stop halts the scheduler and waits for running jobs, including the
// startup prune, to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("history retention stopped")
}

// RunOnce deletes analyses older than maxAge.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.maxAge)
	n, err := s.store.PruneAnalyses(cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning analyses before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return n, nil
}

func (s *Scheduler) run(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Warn("history prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("history pruned", zap.Int64("deleted", n))
	}
}
