package queue

import (
	"context"
	"fmt"
	"time"
)

// allowedTransitions is the closed transition graph. RUNNING -> PENDING is the
// retry re-arm edge; everything else matches the submission-to-terminal flow.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusQueued, StatusFailed},
	StatusQueued:    {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusPending},
	StatusCompleted: {},
	StatusFailed:    {},
}

func transitionAllowed(from, to Status) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionOptions carries the field updates that accompany a status change.
// Only the state machine may set these; no other code path writes status,
// error classification, or completion results.
type TransitionOptions struct {
	ErrorType    ErrorType
	ErrorMessage string
	FinalTitle   string
	FilePath     string

	// IncrementRetry bumps retry_count and records NotBefore as the earliest
	// next attempt. Used for the RUNNING -> PENDING re-arm edge.
	IncrementRetry bool
	NotBefore      *time.Time

	// Metadata is merged into the STATUS_CHANGED event payload.
	Metadata map[string]any
}

// Transition atomically moves a job from an expected current status to a
// target status. The update is guarded by the persisted status (read-current,
// compare, write): if another transition won the race, ErrStatusConflict is
// returned and nothing changes. Illegal edges fail with ErrIllegalTransition
// before touching the database. On success a STATUS_CHANGED event is appended
// in the same transaction.
func (s *Store) Transition(ctx context.Context, jobID int64, from, to Status, opts *TransitionOptions) (*Job, error) {
	if !transitionAllowed(from, to) {
		return nil, &TransitionError{JobID: jobID, From: from, To: to, Err: ErrIllegalTransition}
	}
	if opts == nil {
		opts = &TransitionOptions{}
	}
	if to == StatusFailed && opts.ErrorType == "" {
		// A failed job must always carry a classification.
		opts.ErrorType = ErrorTypeUnknown
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	// A concurrent writer holding the database lock fails the whole
	// transaction with SQLITE_BUSY, so retry it as a unit. Lost races and
	// missing jobs are not busy errors and surface immediately.
	if err := retryOnBusy(ctx, func() error {
		return s.transitionTx(ctx, jobID, from, to, opts, timestamp)
	}); err != nil {
		return nil, err
	}
	return s.GetJob(ctx, jobID)
}

func (s *Store) transitionTx(ctx context.Context, jobID int64, from, to Status, opts *TransitionOptions, timestamp string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE jobs SET status = ?, updated_at = ?`
	args := []any{to, timestamp}

	if opts.ErrorType != "" {
		query += `, error_type = ?`
		args = append(args, string(opts.ErrorType))
	}
	if opts.ErrorMessage != "" {
		query += `, error_message = ?`
		args = append(args, opts.ErrorMessage)
	}
	if to == StatusCompleted {
		query += `, error_type = NULL, error_message = NULL`
	}
	if opts.FinalTitle != "" {
		query += `, final_title = ?`
		args = append(args, opts.FinalTitle)
	}
	if opts.FilePath != "" {
		query += `, file_path = ?`
		args = append(args, opts.FilePath)
	}
	if opts.IncrementRetry {
		query += `, retry_count = retry_count + 1`
	}
	if opts.NotBefore != nil {
		query += `, not_before = ?`
		args = append(args, opts.NotBefore.UTC().Format(time.RFC3339Nano))
	} else if from == StatusPending && to == StatusQueued {
		query += `, not_before = NULL`
	}

	query += ` WHERE id = ? AND status = ?`
	args = append(args, jobID, from)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing job from a lost race.
		var current string
		scanErr := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&current)
		if scanErr != nil {
			return &TransitionError{JobID: jobID, From: from, To: to, Err: ErrNotFound}
		}
		return &TransitionError{JobID: jobID, From: Status(current), To: to, Err: ErrStatusConflict}
	}

	payload := map[string]any{
		"old_status": string(from),
		"new_status": string(to),
	}
	if opts.ErrorType != "" {
		payload["error_type"] = string(opts.ErrorType)
	}
	if opts.ErrorMessage != "" {
		payload["error_message"] = opts.ErrorMessage
	}
	for k, v := range opts.Metadata {
		payload[k] = v
	}
	if err := appendEventTx(ctx, tx, jobID, EventStatusChanged, payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// ReArmForRetry moves a RUNNING job back to PENDING with an incremented retry
// count and a not-before hold, preserving the failure classification for the
// timeline. This is the only sanctioned path back from RUNNING.
func (s *Store) ReArmForRetry(ctx context.Context, jobID int64, errType ErrorType, errMessage string, notBefore time.Time) (*Job, error) {
	return s.Transition(ctx, jobID, StatusRunning, StatusPending, &TransitionOptions{
		ErrorType:      errType,
		ErrorMessage:   errMessage,
		IncrementRetry: true,
		NotBefore:      &notBefore,
		Metadata:       map[string]any{"reason": "retry"},
	})
}
