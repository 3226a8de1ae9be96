package daemon_test

import (
	"context"
	"testing"

	"fetchd/internal/daemon"
	"fetchd/internal/logging"
	"fetchd/internal/queue"
	"fetchd/internal/submission"
	"fetchd/internal/testsupport"
)

func TestDaemonLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if status.LockFilePath == "" || status.QueueDBPath == "" {
		t.Fatalf("status should report paths: %#v", status)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("second Start on a running daemon must fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("daemon should report stopped after Stop")
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	first, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer first.Stop()

	secondStore := testsupport.MustOpenStore(t, cfg)
	second, err := daemon.New(cfg, secondStore, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance must be rejected by the lock")
	}
}

func TestDaemonRecoversOrphansBeforeScheduling(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "https://example.com/orphan.mp4", queue.SourceGeneric, queue.JobTypeVideo)
	if _, err := store.Transition(ctx, job.ID, queue.StatusPending, queue.StatusQueued, nil); err != nil {
		t.Fatalf("queue transition: %v", err)
	}
	if _, err := store.Transition(ctx, job.ID, queue.StatusQueued, queue.StatusRunning, nil); err != nil {
		t.Fatalf("run transition: %v", err)
	}

	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	// The startup pass runs synchronously inside Start.
	recovered, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if recovered.Status != queue.StatusFailed {
		t.Fatalf("default fail policy should finalize the orphan, got %s", recovered.Status)
	}
	if recovered.ErrorType != queue.ErrorTypeFailedStale {
		t.Fatalf("expected FAILED_STALE, got %s", recovered.ErrorType)
	}
}

func TestDaemonSubmitEnqueues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}

	result, err := d.Submit(context.Background(), submission.Request{
		Text:    "https://www.youtube.com/watch?v=daemon",
		JobType: queue.JobTypeVideo,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Job.Status != queue.StatusPending {
		t.Fatalf("expected PENDING, got %s", result.Job.Status)
	}

	jobs, err := d.ListQueue(context.Background(), []queue.Status{queue.StatusPending})
	if err != nil {
		t.Fatalf("ListQueue failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 pending job, got %d", len(jobs))
	}

	health, err := d.QueueHealth(context.Background())
	if err != nil {
		t.Fatalf("QueueHealth failed: %v", err)
	}
	if health.Pending != 1 {
		t.Fatalf("expected pending count 1, got %#v", health)
	}
}
