package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced job does not exist.
	ErrNotFound = errors.New("job not found")

	// ErrIllegalTransition indicates a (from, to) pair outside the allowed
	// transition graph. Attempts are logged by callers as internal-consistency
	// faults and never mutate the persisted status.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrStatusConflict indicates the job's persisted status no longer matches
	// the expected current status at the moment of the atomic update. The
	// caller lost the race and must re-read before deciding anything.
	ErrStatusConflict = errors.New("status conflict")

	// ErrDuplicateActiveJob indicates a non-terminal job already holds the
	// dedup key; the new submission should attach to it instead.
	ErrDuplicateActiveJob = errors.New("active job already exists for dedup key")
)

// TransitionError carries the rejected edge for diagnostics.
type TransitionError struct {
	JobID int64
	From  Status
	To    Status
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %d: cannot transition %s -> %s: %v", e.JobID, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }
