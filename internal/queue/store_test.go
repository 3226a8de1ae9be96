package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"fetchd/internal/queue"
	"fetchd/internal/testsupport"
)

func TestOpenAppliesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.CreateJob(ctx, queue.NewJob{
		URL:        "https://youtube.com/watch?v=abc",
		SourceType: queue.SourceYouTube,
		JobType:    queue.JobTypeVideo,
		DedupKey:   "youtube:abc:video:",
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if job.ID == 0 {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusPending {
		t.Fatalf("expected new job to be PENDING, got %s", job.Status)
	}

	fetched, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if fetched.URL != job.URL || fetched.DedupKey != job.DedupKey {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}
}

func TestCreateJobRecordsCreationEvent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "https://example.com/a", queue.SourceGeneric, queue.JobTypeVideo)

	events, err := store.EventsForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("EventsForJob failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	if events[0].Type != queue.EventJobCreated {
		t.Fatalf("expected JOB_CREATED, got %s", events[0].Type)
	}
}

func TestDuplicateActiveDedupKeyRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	req := queue.NewJob{
		URL:        "https://youtube.com/watch?v=dup",
		SourceType: queue.SourceYouTube,
		JobType:    queue.JobTypeVideo,
		DedupKey:   "youtube:dup:video:",
	}
	if _, err := store.CreateJob(ctx, req); err != nil {
		t.Fatalf("first CreateJob failed: %v", err)
	}
	if _, err := store.CreateJob(ctx, req); !errors.Is(err, queue.ErrDuplicateActiveJob) {
		t.Fatalf("expected ErrDuplicateActiveJob, got %v", err)
	}
}

func TestDedupKeyFreedByTerminalStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	req := queue.NewJob{
		URL:        "https://youtube.com/watch?v=free",
		SourceType: queue.SourceYouTube,
		JobType:    queue.JobTypeVideo,
		DedupKey:   "youtube:free:video:",
	}
	job, err := store.CreateJob(ctx, req)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	if _, err := store.Transition(ctx, job.ID, queue.StatusPending, queue.StatusFailed, &queue.TransitionOptions{
		ErrorType: queue.ErrorTypeUnsupported,
	}); err != nil {
		t.Fatalf("fail transition: %v", err)
	}

	active, err := store.FindActiveByDedupKey(ctx, req.DedupKey)
	if err != nil {
		t.Fatalf("FindActiveByDedupKey failed: %v", err)
	}
	if active != nil {
		t.Fatalf("terminal job should not hold the dedup key, got job %d", active.ID)
	}

	// The key is reusable once the previous holder is terminal.
	if _, err := store.CreateJob(ctx, req); err != nil {
		t.Fatalf("re-create after terminal failed: %v", err)
	}
}

func TestJobsByStatusReturnsCreationOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	first := testsupport.NewJob(t, store, "https://example.com/1", queue.SourceGeneric, queue.JobTypeVideo)
	second := testsupport.NewJob(t, store, "https://example.com/2", queue.SourceGeneric, queue.JobTypeVideo)

	jobs, err := store.JobsByStatus(context.Background(), queue.StatusPending, 0)
	if err != nil {
		t.Fatalf("JobsByStatus failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 pending jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID || jobs[1].ID != second.ID {
		t.Fatalf("expected creation order [%d %d], got [%d %d]", first.ID, second.ID, jobs[0].ID, jobs[1].ID)
	}
}

func TestStaleRunningHonorsTouch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "https://example.com/stale", queue.SourceGeneric, queue.JobTypeVideo)
	if _, err := store.Transition(ctx, job.ID, queue.StatusPending, queue.StatusQueued, nil); err != nil {
		t.Fatalf("queue transition: %v", err)
	}
	if _, err := store.Transition(ctx, job.ID, queue.StatusQueued, queue.StatusRunning, nil); err != nil {
		t.Fatalf("run transition: %v", err)
	}

	future := time.Now().UTC().Add(time.Hour)
	stale, err := store.StaleRunning(ctx, future)
	if err != nil {
		t.Fatalf("StaleRunning failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != job.ID {
		t.Fatalf("expected job %d stale against future cutoff, got %#v", job.ID, stale)
	}

	if err := store.Touch(ctx, job.ID); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	stale, err = store.StaleRunning(ctx, past)
	if err != nil {
		t.Fatalf("StaleRunning after touch failed: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("touched job should not be stale, got %d results", len(stale))
	}
}

func TestHealthCountsByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewJob(t, store, "https://example.com/h1", queue.SourceGeneric, queue.JobTypeVideo)
	job := testsupport.NewJob(t, store, "https://example.com/h2", queue.SourceGeneric, queue.JobTypeVideo)
	if _, err := store.Transition(ctx, job.ID, queue.StatusPending, queue.StatusQueued, nil); err != nil {
		t.Fatalf("queue transition: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 2 || health.Pending != 1 || health.Queued != 1 {
		t.Fatalf("unexpected health summary: %#v", health)
	}
}
