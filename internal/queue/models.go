package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

var allStatuses = []Status{
	StatusPending,
	StatusQueued,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ActiveStatuses are the non-terminal statuses. At most one job per dedup key
// may hold one of these at any time (enforced by a partial unique index).
func ActiveStatuses() []Status {
	return []Status{StatusPending, StatusQueued, StatusRunning}
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// JobType is the kind of media a job fetches.
type JobType string

const (
	JobTypeVideo JobType = "VIDEO"
	JobTypeAudio JobType = "AUDIO"
)

// ParseJobType converts a string into a known JobType.
func ParseJobType(value string) (JobType, bool) {
	normalized := JobType(strings.ToUpper(strings.TrimSpace(value)))
	switch normalized {
	case JobTypeVideo, JobTypeAudio:
		return normalized, true
	}
	return "", false
}

// SourceType identifies which capability implementation serves a URL.
type SourceType string

const (
	SourceYouTube  SourceType = "YOUTUBE"
	SourceFacebook SourceType = "FACEBOOK"
	SourceArchive  SourceType = "ARCHIVE"
	SourceLecture  SourceType = "LECTURE"
	SourceGeneric  SourceType = "GENERIC"
)

// ParseSourceType converts a string into a known SourceType.
func ParseSourceType(value string) (SourceType, bool) {
	normalized := SourceType(strings.ToUpper(strings.TrimSpace(value)))
	switch normalized {
	case SourceYouTube, SourceFacebook, SourceArchive, SourceLecture, SourceGeneric:
		return normalized, true
	}
	return "", false
}

// ErrorType classifies why a job failed. FailedJobs always carry one.
type ErrorType string

const (
	ErrorTypeNetwork         ErrorType = "NETWORK_ERROR"
	ErrorTypeHTTP            ErrorType = "HTTP_ERROR"
	ErrorTypeAuth            ErrorType = "AUTH_ERROR"
	ErrorTypeRateLimit       ErrorType = "RATE_LIMIT"
	ErrorTypeExtractor       ErrorType = "EXTRACTOR_ERROR"
	ErrorTypeExtractorUpdate ErrorType = "EXTRACTOR_UPDATE_REQUIRED"
	ErrorTypeGeoBlock        ErrorType = "GEO_BLOCK"
	ErrorTypeSizeLimit       ErrorType = "SIZE_LIMIT"
	ErrorTypeFormatNotFound  ErrorType = "FORMAT_NOT_FOUND"
	ErrorTypeParser          ErrorType = "PARSER_ERROR"
	ErrorTypeProtected       ErrorType = "PROTECTED_CONTENT"
	ErrorTypeUnsupported     ErrorType = "UNSUPPORTED_SOURCE"
	ErrorTypeTimeout         ErrorType = "TIMEOUT"
	ErrorTypeFailedStale     ErrorType = "FAILED_STALE"
	ErrorTypeUnknown         ErrorType = "UNKNOWN"
)

// AuthProfileStatus tracks the health of a credential profile.
type AuthProfileStatus string

const (
	AuthProfileActive   AuthProfileStatus = "ACTIVE"
	AuthProfileDegraded AuthProfileStatus = "DEGRADED"
	AuthProfileDisabled AuthProfileStatus = "DISABLED"
)

// Job represents a single media-fetch request persisted in SQLite.
type Job struct {
	ID               int64
	URL              string
	SourceType       SourceType
	JobType          JobType
	RequestedQuality string
	Status           Status
	RetryCount       int
	DedupKey         string
	AuthProfileID    string
	RequesterID      string
	ChannelID        string
	FinalTitle       string
	FilePath         string
	ErrorType        ErrorType
	ErrorMessage     string
	NotBefore        *time.Time
	ArchivedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsActive reports whether the job still occupies its dedup key.
func (j *Job) IsActive() bool {
	return !j.Status.IsTerminal()
}

// Eligible reports whether a pending job may be promoted at the given time,
// honoring any retry not-before hold.
func (j *Job) Eligible(now time.Time) bool {
	if j.Status != StatusPending {
		return false
	}
	return j.NotBefore == nil || !now.Before(*j.NotBefore)
}

// AuthProfile is a named credential context for a source. The registry is the
// only writer of its health fields.
type AuthProfile struct {
	ID                 string
	SourceType         SourceType
	CredentialFile     string
	Status             AuthProfileStatus
	FailureCountRecent int
	LastSuccessAt      *time.Time
	LastFailureAt      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HealthSummary aggregates job counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Pending   int
	Queued    int
	Running   int
	Completed int
	Failed    int
}
