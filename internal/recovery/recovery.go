// Package recovery reconciles RUNNING jobs that no live worker owns. A crash
// leaves claims behind in the store; this package is the only path that
// resolves them.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fetchd/internal/config"
	"fetchd/internal/logging"
	"fetchd/internal/queue"
	"fetchd/internal/retrypolicy"
)

// Service applies the configured recovery policy to orphaned RUNNING jobs.
type Service struct {
	store      *queue.Store
	policy     string
	staleAfter time.Duration
	maxRetries int
	logger     *slog.Logger

	now func() time.Time
}

// NewService builds a recovery service from the configured policy.
func NewService(store *queue.Store, cfg *config.Config, retry *retrypolicy.Policy, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		policy:     cfg.Recovery.Policy,
		staleAfter: time.Duration(cfg.Recovery.StaleAfter) * time.Second,
		maxRetries: retry.MaxRetries(),
		logger:     logging.NewComponentLogger(logger, "recovery"),
		now:        time.Now,
	}
}

// RecoverStartup reconciles every RUNNING job. At process start no worker
// holds a claim, so any RUNNING row is an orphan regardless of age. Runs
// before the scheduler starts so no worker can race the scan.
func (s *Service) RecoverStartup(ctx context.Context) (int, error) {
	orphans, err := s.store.JobsByStatus(ctx, queue.StatusRunning, 0)
	if err != nil {
		return 0, fmt.Errorf("list running jobs: %w", err)
	}
	return s.reconcile(ctx, orphans, "startup")
}

// Sweep reconciles RUNNING jobs whose heartbeat is older than the staleness
// cutoff. Workers refresh updated_at between stages and during transfers, so
// only a dead attempt can fall behind the cutoff.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.staleAfter)
	stale, err := s.store.StaleRunning(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale running jobs: %w", err)
	}
	return s.reconcile(ctx, stale, "sweep")
}

// Run sweeps periodically until the context is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.staleAfter / 2
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("staleness sweep failed", logging.Args(logging.Error(err))...)
			}
		}
	}
}

func (s *Service) reconcile(ctx context.Context, jobs []*queue.Job, pass string) (int, error) {
	recovered := 0
	for _, job := range jobs {
		if err := s.reconcileJob(ctx, job); err != nil {
			if errors.Is(err, queue.ErrStatusConflict) || errors.Is(err, queue.ErrNotFound) {
				// The job moved since the scan; nothing to recover.
				continue
			}
			return recovered, fmt.Errorf("reconcile job %d: %w", job.ID, err)
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Info("recovery pass finished", logging.Args(
			logging.String("pass", pass),
			logging.String("policy", s.policy),
			logging.Int("recovered", recovered),
		)...)
	}
	return recovered, nil
}

func (s *Service) reconcileJob(ctx context.Context, job *queue.Job) error {
	message := "job was running at recovery with no live worker"

	if s.policy == config.RecoveryPolicyRequeue && job.RetryCount < s.maxRetries {
		if _, err := s.store.ReArmForRetry(ctx, job.ID, queue.ErrorTypeFailedStale, message, s.now().UTC()); err != nil {
			return err
		}
		if err := s.store.AppendEvent(ctx, job.ID, queue.EventJobRecoveredStale, map[string]any{
			"retry_count": job.RetryCount + 1,
		}); err != nil {
			s.logger.Warn("record stale recovery failed", logging.Args(
				logging.Int64(logging.FieldJobID, job.ID),
				logging.Error(err),
			)...)
		}
		s.logger.Warn("stale job requeued", logging.Args(
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Int("retry_count", job.RetryCount+1),
		)...)
		return nil
	}

	if _, err := s.store.Transition(ctx, job.ID, queue.StatusRunning, queue.StatusFailed, &queue.TransitionOptions{
		ErrorType:    queue.ErrorTypeFailedStale,
		ErrorMessage: message,
	}); err != nil {
		return err
	}
	if err := s.store.AppendEvent(ctx, job.ID, queue.EventStaleJobMarkedFailed, map[string]any{
		"retry_count": job.RetryCount,
	}); err != nil {
		s.logger.Warn("record stale failure failed", logging.Args(
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Error(err),
		)...)
	}
	s.logger.Warn("stale job marked failed", logging.Args(
		logging.Int64(logging.FieldJobID, job.ID),
	)...)
	return nil
}
