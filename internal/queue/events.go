package queue

import "time"

// EventType tags an entry on a job's immutable timeline.
type EventType string

const (
	EventJobCreated           EventType = "JOB_CREATED"
	EventJobReused            EventType = "JOB_REUSED"
	EventStatusChanged        EventType = "STATUS_CHANGED"
	EventWorkerAssigned       EventType = "WORKER_ASSIGNED"
	EventStageStarted         EventType = "STAGE_STARTED"
	EventStageCompleted       EventType = "STAGE_COMPLETED"
	EventStageFailed          EventType = "STAGE_FAILED"
	EventRetryScheduled       EventType = "RETRY_SCHEDULED"
	EventRetrySkipped         EventType = "RETRY_SKIPPED"
	EventMaxRetriesReached    EventType = "MAX_RETRIES_REACHED"
	EventJobRecoveredStale    EventType = "JOB_RECOVERED_STALE"
	EventStaleJobMarkedFailed EventType = "STALE_JOB_MARKED_FAILED"
	EventArchived             EventType = "ARCHIVED"
)

// Event is one timeline entry. Events are append-only; nothing in the core
// updates or deletes them.
type Event struct {
	ID        int64
	JobID     int64
	Type      EventType
	Payload   map[string]any
	CreatedAt time.Time
}
