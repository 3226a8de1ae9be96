package submission_test

import (
	"context"
	"errors"
	"testing"

	"fetchd/internal/logging"
	"fetchd/internal/queue"
	"fetchd/internal/sources"
	"fetchd/internal/submission"
	"fetchd/internal/testsupport"
)

func TestSubmitCreatesPendingJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	svc := submission.NewService(store, logging.NewNop())

	result, err := svc.Submit(context.Background(), submission.Request{
		Text:             "please fetch https://www.youtube.com/watch?v=abc123 thanks",
		JobType:          queue.JobTypeVideo,
		RequestedQuality: "720p",
		RequesterID:      "user-1",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Reused {
		t.Fatal("first submission should create, not attach")
	}
	job := result.Job
	if job.Status != queue.StatusPending {
		t.Fatalf("expected PENDING, got %s", job.Status)
	}
	if job.SourceType != queue.SourceYouTube {
		t.Fatalf("expected YOUTUBE source, got %s", job.SourceType)
	}
	if job.DedupKey == "" {
		t.Fatal("expected a derived dedup key")
	}
}

func TestSubmitDuplicateAttaches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	svc := submission.NewService(store, logging.NewNop())

	ctx := context.Background()
	req := submission.Request{
		Text:        "https://www.youtube.com/watch?v=same",
		JobType:     queue.JobTypeVideo,
		RequesterID: "user-1",
	}
	first, err := svc.Submit(ctx, req)
	if err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}

	req.RequesterID = "user-2"
	second, err := svc.Submit(ctx, req)
	if err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}
	if !second.Reused {
		t.Fatal("duplicate submission should attach to the active job")
	}
	if second.Job.ID != first.Job.ID {
		t.Fatalf("expected attachment to job %d, got %d", first.Job.ID, second.Job.ID)
	}

	events, err := store.EventsForJob(ctx, first.Job.ID)
	if err != nil {
		t.Fatalf("EventsForJob failed: %v", err)
	}
	reused := false
	for _, event := range events {
		if event.Type == queue.EventJobReused {
			reused = true
			if event.Payload["requester_id"] != "user-2" {
				t.Fatalf("reuse event should name the second requester: %#v", event.Payload)
			}
		}
	}
	if !reused {
		t.Fatal("expected JOB_REUSED on the timeline")
	}
}

func TestSubmitDifferentQualityIsDistinctJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	svc := submission.NewService(store, logging.NewNop())

	ctx := context.Background()
	base := submission.Request{
		Text:             "https://www.youtube.com/watch?v=quality",
		JobType:          queue.JobTypeVideo,
		RequestedQuality: "720p",
	}
	first, err := svc.Submit(ctx, base)
	if err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}

	base.RequestedQuality = "1080p"
	second, err := svc.Submit(ctx, base)
	if err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}
	if second.Reused || second.Job.ID == first.Job.ID {
		t.Fatal("different quality should create a distinct job")
	}
}

func TestSubmitAfterTerminalCreatesFresh(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	svc := submission.NewService(store, logging.NewNop())

	ctx := context.Background()
	req := submission.Request{Text: "https://www.youtube.com/watch?v=again", JobType: queue.JobTypeVideo}
	first, err := svc.Submit(ctx, req)
	if err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	if _, err := store.Transition(ctx, first.Job.ID, queue.StatusPending, queue.StatusFailed, &queue.TransitionOptions{
		ErrorType: queue.ErrorTypeUnsupported,
	}); err != nil {
		t.Fatalf("fail transition: %v", err)
	}

	second, err := svc.Submit(ctx, req)
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if second.Reused || second.Job.ID == first.Job.ID {
		t.Fatal("terminal jobs do not absorb new submissions")
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	svc := submission.NewService(store, logging.NewNop())

	ctx := context.Background()
	if _, err := svc.Submit(ctx, submission.Request{Text: "no url in here"}); !errors.Is(err, sources.ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
	if _, err := svc.Submit(ctx, submission.Request{Text: "https://example.com/page.html"}); err == nil {
		t.Fatal("expected rejection for unsupported source")
	}
}
