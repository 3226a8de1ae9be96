// Package scheduler promotes pending jobs into the bounded queue and
// dispatches queued jobs to the worker pool. It is the only component that
// decides when a job runs; the pool only bounds how many run at once.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fetchd/internal/config"
	"fetchd/internal/logging"
	"fetchd/internal/queue"
	"fetchd/internal/worker"
)

// Scheduler runs the poll loop driving promotion and dispatch.
type Scheduler struct {
	store  *queue.Store
	pool   *worker.Pool
	cfg    *config.Config
	logger *slog.Logger

	now func() time.Time
}

// New builds a scheduler over the store and pool.
func New(store *queue.Store, pool *worker.Pool, cfg *config.Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		pool:   pool,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "scheduler"),
		now:    time.Now,
	}
}

// Run polls until the context is cancelled. Tick errors back off on the
// error retry interval instead of the normal poll interval.
func (s *Scheduler) Run(ctx context.Context) error {
	poll := time.Duration(s.cfg.Scheduler.PollInterval) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}
	errorRetry := time.Duration(s.cfg.Scheduler.ErrorRetryInterval) * time.Second
	if errorRetry <= 0 {
		errorRetry = poll
	}

	s.logger.Info("scheduler started", logging.Args(
		logging.Duration("poll_interval", poll),
		logging.Int("max_parallel_jobs", s.cfg.Scheduler.MaxParallelJobs),
		logging.Int("max_parallel_jobs_per_source", s.cfg.Scheduler.MaxParallelJobsPerSource),
	)...)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		next := poll
		if err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("scheduler stopped")
				return ctx.Err()
			}
			s.logger.Error("scheduler tick failed", logging.Args(logging.Error(err))...)
			next = errorRetry
		}
		timer.Reset(next)
	}
}

// Tick performs one promotion plus dispatch pass. Exposed for tests.
func (s *Scheduler) Tick(ctx context.Context) error {
	if err := s.promote(ctx); err != nil {
		return err
	}
	return s.dispatch(ctx)
}

// promote moves eligible PENDING jobs into QUEUED, oldest first, without
// exceeding the queue length bound.
func (s *Scheduler) promote(ctx context.Context) error {
	queued, err := s.store.CountByStatus(ctx, queue.StatusQueued)
	if err != nil {
		return err
	}
	capacity := s.cfg.Scheduler.MaxQueueLength - queued
	if capacity <= 0 {
		return nil
	}

	pending, err := s.store.JobsByStatus(ctx, queue.StatusPending, 0)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	for _, job := range pending {
		if capacity <= 0 {
			return nil
		}
		if !job.Eligible(now) {
			continue
		}
		_, err := s.store.Transition(ctx, job.ID, queue.StatusPending, queue.StatusQueued, nil)
		switch {
		case err == nil:
			capacity--
			s.logger.Debug("job promoted", logging.Args(
				logging.Int64(logging.FieldJobID, job.ID),
				logging.String(logging.FieldSource, string(job.SourceType)),
			)...)
		case isTransitionRace(err):
			// Someone else moved it since we listed; skip.
		default:
			return err
		}
	}
	return nil
}

// dispatch hands QUEUED jobs to the pool, oldest first, honoring the global
// slot cap, the per-source cap, and dedup key exclusivity among RUNNING jobs.
func (s *Scheduler) dispatch(ctx context.Context) error {
	if s.pool.Available() <= 0 {
		return nil
	}
	queuedJobs, err := s.store.JobsByStatus(ctx, queue.StatusQueued, 0)
	if err != nil {
		return err
	}
	if len(queuedJobs) == 0 {
		return nil
	}

	runningBySource, err := s.store.RunningCountsBySource(ctx)
	if err != nil {
		return err
	}
	runningKeys, err := s.store.RunningDedupKeys(ctx)
	if err != nil {
		return err
	}

	perSource := s.cfg.Scheduler.MaxParallelJobsPerSource
	for _, job := range queuedJobs {
		if s.pool.Available() <= 0 {
			return nil
		}
		if perSource > 0 && runningBySource[job.SourceType] >= perSource {
			continue
		}
		if _, running := runningKeys[job.DedupKey]; running {
			continue
		}
		if !s.pool.TrySubmit(ctx, job) {
			return nil
		}
		runningBySource[job.SourceType]++
		runningKeys[job.DedupKey] = struct{}{}
	}
	return nil
}

func isTransitionRace(err error) bool {
	return errors.Is(err, queue.ErrStatusConflict) || errors.Is(err, queue.ErrNotFound)
}
