// Package queue persists media-fetch jobs in SQLite and owns every status
// mutation. The Store is the single source of truth for job state: all
// transitions go through Transition (compare-and-swap on the current status)
// so that concurrent schedulers and workers can never race a job into an
// inconsistent state. Job events form an append-only timeline alongside the
// job rows.
package queue
