package worker_test

import (
	"context"
	"testing"
	"time"

	"fetchd/internal/authprofiles"
	"fetchd/internal/logging"
	"fetchd/internal/queue"
	"fetchd/internal/retrypolicy"
	"fetchd/internal/sources"
	"fetchd/internal/storagepaths"
	"fetchd/internal/testsupport"
	"fetchd/internal/worker"
)

type parkedCapability struct {
	release chan struct{}
}

func (p *parkedCapability) FetchMetadata(ctx context.Context, url string, fctx sources.FetchContext) (*sources.MetadataResult, error) {
	select {
	case <-p.release:
	case <-ctx.Done():
	}
	return goodMeta(), nil
}

func (p *parkedCapability) Download(ctx context.Context, url string, opts sources.DownloadOptions, fctx sources.FetchContext) (*sources.DownloadResult, error) {
	return nil, context.Canceled
}

func TestPoolBoundsConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	capability := &parkedCapability{release: make(chan struct{})}
	router := sources.NewRouterWithCapabilities(map[queue.SourceType]sources.Capability{
		queue.SourceGeneric: capability,
	})
	registry := authprofiles.NewRegistry(store, logging.NewNop(), cfg.Auth.DegradedThreshold)
	policy := retrypolicy.New(cfg.Retry.MaxRetries, cfg.Retry.BackoffTiers)
	layout := storagepaths.NewLayout(cfg.Paths.TmpDir, cfg.Paths.ArchiveDir)
	pipeline := worker.NewPipeline(store, router, registry, policy, layout, nil, cfg, logging.NewNop())

	pool := worker.NewPool(pipeline, 2, logging.NewNop())
	defer func() {
		close(capability.release)
		pool.Wait()
	}()

	ctx := context.Background()
	jobs := make([]*queue.Job, 0, 3)
	for _, url := range []string{
		"https://example.com/p1.mp4",
		"https://example.com/p2.mp4",
		"https://example.com/p3.mp4",
	} {
		job := testsupport.NewJob(t, store, url, queue.SourceGeneric, queue.JobTypeVideo)
		queued, err := store.Transition(ctx, job.ID, queue.StatusPending, queue.StatusQueued, nil)
		if err != nil {
			t.Fatalf("queue transition: %v", err)
		}
		jobs = append(jobs, queued)
	}

	if pool.Available() != 2 {
		t.Fatalf("fresh pool of 2 should have 2 slots, got %d", pool.Available())
	}
	if !pool.TrySubmit(ctx, jobs[0]) {
		t.Fatal("first submit should be accepted")
	}
	if !pool.TrySubmit(ctx, jobs[1]) {
		t.Fatal("second submit should be accepted")
	}
	if pool.TrySubmit(ctx, jobs[2]) {
		t.Fatal("third submit must be rejected while the pool is saturated")
	}
	if pool.Available() != 0 {
		t.Fatalf("saturated pool should have 0 slots, got %d", pool.Available())
	}

	// Wait for both claims so the deferred release drains cleanly.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		count, err := store.CountByStatus(ctx, queue.StatusRunning)
		if err != nil {
			t.Fatalf("CountByStatus failed: %v", err)
		}
		if count == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for claims")
}
