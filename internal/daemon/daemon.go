// Package daemon assembles the fetch services into a single lifecycle with
// flock-based locking to prevent multiple concurrent instances.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"fetchd/internal/authprofiles"
	"fetchd/internal/config"
	"fetchd/internal/logging"
	"fetchd/internal/notify"
	"fetchd/internal/queue"
	"fetchd/internal/recovery"
	"fetchd/internal/retrypolicy"
	"fetchd/internal/scheduler"
	"fetchd/internal/sources"
	"fetchd/internal/storagepaths"
	"fetchd/internal/submission"
	"fetchd/internal/worker"
)

// Daemon owns the scheduler, worker pool, and recovery loop.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store

	submitter *submission.Service
	pool      *worker.Pool
	sched     *scheduler.Scheduler
	recoverer *recovery.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Queue        queue.HealthSummary
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon and wires its services.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	policy := retrypolicy.New(cfg.Retry.MaxRetries, cfg.Retry.BackoffTiers)
	registry := authprofiles.NewRegistry(store, logger, cfg.Auth.DegradedThreshold)
	layout := storagepaths.NewLayout(cfg.Paths.TmpDir, cfg.Paths.ArchiveDir)
	notifier := notify.NewService(cfg)
	pipeline := worker.NewPipeline(store, sources.NewRouter(), registry, policy, layout, notifier, cfg, logger)
	pool := worker.NewPool(pipeline, cfg.Scheduler.MaxParallelJobs, logger)

	lockPath := filepath.Join(cfg.Paths.StateDir, "fetchd.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		submitter: submission.NewService(store, logger),
		pool:      pool,
		sched:     scheduler.New(store, pool, cfg, logger),
		recoverer: recovery.NewService(store, cfg, policy, logger),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, runs the startup recovery pass, and
// launches the scheduler and staleness sweep. Recovery completes before any
// worker can claim a job, so the scan cannot race a live attempt.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fetchd instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	recovered, err := d.recoverer.RecoverStartup(runCtx)
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("startup recovery: %w", err)
	}
	if recovered > 0 {
		d.logger.Info("startup recovery reconciled jobs", logging.Args(logging.Int("count", recovered))...)
	}

	d.cancel = cancel
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		_ = d.sched.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		sweepInterval := time.Duration(d.cfg.Recovery.StaleAfter) * time.Second / 2
		_ = d.recoverer.Run(runCtx, sweepInterval)
	}()

	d.running.Store(true)
	d.logger.Info("fetchd daemon started", logging.Args(logging.String("lock", d.lockPath))...)
	return nil
}

// Stop cancels background loops, waits for in-flight workers, and releases
// the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.pool.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock failed", logging.Args(logging.Error(err))...)
	}
	d.running.Store(false)
	d.logger.Info("fetchd daemon stopped")
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Submit enqueues a new fetch request through the submission service.
func (d *Daemon) Submit(ctx context.Context, req submission.Request) (*submission.Result, error) {
	return d.submitter.Submit(ctx, req)
}

// ListQueue returns jobs filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Job, error) {
	return d.store.List(ctx, statuses...)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	health, err := d.store.Health(ctx)
	if err != nil {
		d.logger.Warn("queue health check failed", logging.Args(logging.Error(err))...)
	}
	return Status{
		Running:      d.running.Load(),
		Queue:        health,
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
}
