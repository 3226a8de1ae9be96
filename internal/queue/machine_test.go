package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fetchd/internal/queue"
	"fetchd/internal/testsupport"
)

func advanceTo(t *testing.T, store *queue.Store, job *queue.Job, statuses ...queue.Status) *queue.Job {
	t.Helper()

	ctx := context.Background()
	current := job
	for _, next := range statuses {
		updated, err := store.Transition(ctx, current.ID, current.Status, next, nil)
		if err != nil {
			t.Fatalf("transition %s -> %s: %v", current.Status, next, err)
		}
		current = updated
	}
	return current
}

func TestTransitionHappyPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job := testsupport.NewJob(t, store, "https://example.com/happy", queue.SourceGeneric, queue.JobTypeVideo)
	job = advanceTo(t, store, job, queue.StatusQueued, queue.StatusRunning)

	final, err := store.Transition(context.Background(), job.ID, queue.StatusRunning, queue.StatusCompleted, &queue.TransitionOptions{
		FinalTitle: "A Title",
		FilePath:   "/archive/a-title.mp4",
	})
	if err != nil {
		t.Fatalf("complete transition: %v", err)
	}
	if final.Status != queue.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", final.Status)
	}
	if final.FinalTitle != "A Title" || final.FilePath != "/archive/a-title.mp4" {
		t.Fatalf("completion fields not persisted: %#v", final)
	}
	if final.ErrorType != "" || final.ErrorMessage != "" {
		t.Fatalf("completed job should carry no error fields: %#v", final)
	}
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job := testsupport.NewJob(t, store, "https://example.com/illegal", queue.SourceGeneric, queue.JobTypeVideo)

	_, err := store.Transition(context.Background(), job.ID, queue.StatusPending, queue.StatusCompleted, nil)
	if !errors.Is(err, queue.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}

	// Terminal statuses accept no outgoing edges.
	failed := testsupport.NewJob(t, store, "https://example.com/terminal", queue.SourceGeneric, queue.JobTypeVideo)
	if _, err := store.Transition(context.Background(), failed.ID, queue.StatusPending, queue.StatusFailed, &queue.TransitionOptions{
		ErrorType: queue.ErrorTypeUnsupported,
	}); err != nil {
		t.Fatalf("fail transition: %v", err)
	}
	_, err = store.Transition(context.Background(), failed.ID, queue.StatusFailed, queue.StatusPending, nil)
	if !errors.Is(err, queue.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition from FAILED, got %v", err)
	}
}

func TestTransitionDetectsLostRace(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job := testsupport.NewJob(t, store, "https://example.com/race", queue.SourceGeneric, queue.JobTypeVideo)
	advanceTo(t, store, job, queue.StatusQueued)

	// The stored status is QUEUED now; a transition asserting PENDING loses.
	_, err := store.Transition(context.Background(), job.ID, queue.StatusPending, queue.StatusQueued, nil)
	if !errors.Is(err, queue.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
	var terr *queue.TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransitionError, got %T", err)
	}
	if terr.From != queue.StatusQueued {
		t.Fatalf("conflict should report actual status QUEUED, got %s", terr.From)
	}
}

func TestTransitionMissingJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.Transition(context.Background(), 9999, queue.StatusPending, queue.StatusQueued, nil)
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFailedTransitionAlwaysClassified(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job := testsupport.NewJob(t, store, "https://example.com/classified", queue.SourceGeneric, queue.JobTypeVideo)
	failed, err := store.Transition(context.Background(), job.ID, queue.StatusPending, queue.StatusFailed, nil)
	if err != nil {
		t.Fatalf("fail transition: %v", err)
	}
	if failed.ErrorType != queue.ErrorTypeUnknown {
		t.Fatalf("unclassified failure should default to UNKNOWN, got %q", failed.ErrorType)
	}
}

func TestReArmForRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job := testsupport.NewJob(t, store, "https://example.com/rearm", queue.SourceGeneric, queue.JobTypeVideo)
	job = advanceTo(t, store, job, queue.StatusQueued, queue.StatusRunning)

	notBefore := time.Now().UTC().Add(30 * time.Second).Truncate(time.Second)
	rearmed, err := store.ReArmForRetry(context.Background(), job.ID, queue.ErrorTypeNetwork, "connection reset", notBefore)
	if err != nil {
		t.Fatalf("ReArmForRetry failed: %v", err)
	}
	if rearmed.Status != queue.StatusPending {
		t.Fatalf("re-armed job should be PENDING, got %s", rearmed.Status)
	}
	if rearmed.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", rearmed.RetryCount)
	}
	if rearmed.NotBefore == nil || rearmed.NotBefore.Before(notBefore.Add(-time.Second)) {
		t.Fatalf("not_before not persisted: %#v", rearmed.NotBefore)
	}
	if rearmed.Eligible(time.Now().UTC()) {
		t.Fatal("job should not be eligible before the backoff hold expires")
	}
	if !rearmed.Eligible(notBefore.Add(time.Second)) {
		t.Fatal("job should be eligible after the hold expires")
	}
}

func TestPromotionClearsHold(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "https://example.com/hold", queue.SourceGeneric, queue.JobTypeVideo)
	job = advanceTo(t, store, job, queue.StatusQueued, queue.StatusRunning)

	rearmed, err := store.ReArmForRetry(ctx, job.ID, queue.ErrorTypeNetwork, "reset", time.Now().UTC().Add(-time.Second))
	if err != nil {
		t.Fatalf("ReArmForRetry failed: %v", err)
	}
	promoted, err := store.Transition(ctx, rearmed.ID, queue.StatusPending, queue.StatusQueued, nil)
	if err != nil {
		t.Fatalf("promotion failed: %v", err)
	}
	if promoted.NotBefore != nil {
		t.Fatalf("promotion should clear not_before, got %v", promoted.NotBefore)
	}
}

func TestTransitionRecordsTimelineEvent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "https://example.com/timeline", queue.SourceGeneric, queue.JobTypeVideo)
	advanceTo(t, store, job, queue.StatusQueued)

	events, err := store.EventsForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("EventsForJob failed: %v", err)
	}
	last := events[len(events)-1]
	if last.Type != queue.EventStatusChanged {
		t.Fatalf("expected STATUS_CHANGED, got %s", last.Type)
	}
	if last.Payload["old_status"] != string(queue.StatusPending) || last.Payload["new_status"] != string(queue.StatusQueued) {
		t.Fatalf("unexpected payload: %#v", last.Payload)
	}
}

func TestConcurrentTransitionsAllSucceed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	const jobCount = 8
	jobs := make([]*queue.Job, jobCount)
	for i := range jobs {
		jobs[i] = testsupport.NewJob(t, store,
			fmt.Sprintf("https://example.com/concurrent-%d", i),
			queue.SourceGeneric, queue.JobTypeVideo)
		jobs[i] = advanceTo(t, store, jobs[i], queue.StatusQueued)
	}

	// Simultaneous claims contend for the single SQLite writer; every one
	// must land rather than bounce off a locked database.
	errs := make(chan error, jobCount)
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := store.Transition(context.Background(), id, queue.StatusQueued, queue.StatusRunning, nil)
			errs <- err
		}(job.ID)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent claim failed: %v", err)
		}
	}

	running, err := store.CountByStatus(context.Background(), queue.StatusRunning)
	if err != nil {
		t.Fatalf("count running: %v", err)
	}
	if running != jobCount {
		t.Fatalf("expected %d RUNNING jobs, got %d", jobCount, running)
	}
}
