package testsupport

import (
	"context"
	"testing"

	"fetchd/internal/config"
	"fetchd/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a pending job for tests using the provided store. The URL
// doubles as the dedup key so each distinct URL is its own active job.
func NewJob(t testing.TB, store *queue.Store, url string, source queue.SourceType, jobType queue.JobType) *queue.Job {
	t.Helper()

	job, err := store.CreateJob(context.Background(), queue.NewJob{
		URL:        url,
		SourceType: source,
		JobType:    jobType,
		DedupKey:   url,
	})
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}
