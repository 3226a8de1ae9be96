package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NewJob describes a job to insert. Status always starts at PENDING.
type NewJob struct {
	URL              string
	SourceType       SourceType
	JobType          JobType
	RequestedQuality string
	DedupKey         string
	AuthProfileID    string
	RequesterID      string
	ChannelID        string
}

// CreateJob inserts a pending job and its JOB_CREATED event in one
// transaction. Returns ErrDuplicateActiveJob when a non-terminal job already
// holds the dedup key.
func (s *Store) CreateJob(ctx context.Context, req NewJob) (*Job, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, errors.New("url is required")
	}
	if strings.TrimSpace(req.DedupKey) == "" {
		return nil, errors.New("dedup key is required")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	var id int64
	if err := retryOnBusy(ctx, func() error {
		var txErr error
		id, txErr = s.createJobTx(ctx, req, timestamp)
		return txErr
	}); err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}

func (s *Store) createJobTx(ctx context.Context, req NewJob, timestamp string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO jobs (
            url, source_type, job_type, requested_quality, status, dedup_key,
            auth_profile_id, requester_id, channel_id, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.URL,
		req.SourceType,
		req.JobType,
		nullableString(req.RequestedQuality),
		StatusPending,
		req.DedupKey,
		nullableString(req.AuthProfileID),
		nullableString(req.RequesterID),
		nullableString(req.ChannelID),
		timestamp,
		timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateActiveJob
		}
		return 0, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	payload := map[string]any{
		"url":               req.URL,
		"source_type":       string(req.SourceType),
		"job_type":          string(req.JobType),
		"requested_quality": req.RequestedQuality,
	}
	if err := appendEventTx(ctx, tx, id, EventJobCreated, payload); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit job insert: %w", err)
	}
	return id, nil
}

// GetJob fetches a job by identifier.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindActiveByDedupKey returns the non-terminal job holding a dedup key, or
// nil when the key is free.
func (s *Store) FindActiveByDedupKey(ctx context.Context, dedupKey string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE dedup_key = ? AND status IN (?, ?, ?) LIMIT 1`,
		dedupKey, StatusPending, StatusQueued, StatusRunning,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active by dedup key: %w", err)
	}
	return job, nil
}

// JobsByStatus returns jobs matching a status in creation order. A non-positive
// limit returns everything.
func (s *Store) JobsByStatus(ctx context.Context, status Status, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = ? ORDER BY created_at, id`
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), in creation order.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// CountByStatus returns the number of jobs in a status.
func (s *Store) CountByStatus(ctx context.Context, status Status) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE status = ?`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count by status: %w", err)
	}
	return count, nil
}

// RunningCountsBySource returns how many jobs are RUNNING per source type.
func (s *Store) RunningCountsBySource(ctx context.Context) (map[SourceType]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT source_type, COUNT(1) FROM jobs WHERE status = ? GROUP BY source_type`,
		StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("running counts by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[SourceType]int)
	for rows.Next() {
		var source SourceType
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, err
		}
		counts[source] = count
	}
	return counts, rows.Err()
}

// RunningDedupKeys returns the dedup keys currently held by RUNNING jobs.
func (s *Store) RunningDedupKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dedup_key FROM jobs WHERE status = ?`, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("running dedup keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// StaleRunning returns jobs stuck in RUNNING whose last update predates the
// cutoff. No live worker can legitimately hold such a job.
func (s *Store) StaleRunning(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? AND updated_at < ? ORDER BY created_at, id`,
		StatusRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("stale running jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Touch refreshes a job's updated_at so the recovery staleness check treats it
// as live. Workers call this while a pipeline stage is in flight.
func (s *Store) Touch(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(ctx, `UPDATE jobs SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("touch job: %w", err)
	}
	return nil
}

// MarkArchived records the archival move of a completed job's artifact.
func (s *Store) MarkArchived(ctx context.Context, id int64, finalPath string) error {
	now := time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET file_path = ?, archived_at = ?, updated_at = ? WHERE id = ?`,
		finalPath,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark archived: %w", err)
	}
	return s.AppendEvent(ctx, id, EventArchived, map[string]any{"file_path": finalPath})
}

const jobColumns = "id, url, source_type, job_type, requested_quality, status, retry_count, dedup_key, auth_profile_id, requester_id, channel_id, final_title, file_path, error_type, error_message, not_before, archived_at, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               int64
		url              string
		sourceType       string
		jobType          string
		requestedQuality sql.NullString
		statusStr        string
		retryCount       int
		dedupKey         string
		authProfileID    sql.NullString
		requesterID      sql.NullString
		channelID        sql.NullString
		finalTitle       sql.NullString
		filePath         sql.NullString
		errorType        sql.NullString
		errorMessage     sql.NullString
		notBeforeRaw     sql.NullString
		archivedRaw      sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&url,
		&sourceType,
		&jobType,
		&requestedQuality,
		&statusStr,
		&retryCount,
		&dedupKey,
		&authProfileID,
		&requesterID,
		&channelID,
		&finalTitle,
		&filePath,
		&errorType,
		&errorMessage,
		&notBeforeRaw,
		&archivedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:               id,
		URL:              url,
		SourceType:       SourceType(sourceType),
		JobType:          JobType(jobType),
		RequestedQuality: requestedQuality.String,
		Status:           Status(statusStr),
		RetryCount:       retryCount,
		DedupKey:         dedupKey,
		AuthProfileID:    authProfileID.String,
		RequesterID:      requesterID.String,
		ChannelID:        channelID.String,
		FinalTitle:       finalTitle.String,
		FilePath:         filePath.String,
		ErrorType:        ErrorType(errorType.String),
		ErrorMessage:     errorMessage.String,
	}

	if notBeforeRaw.Valid {
		if t, err := parseTimeString(notBeforeRaw.String); err == nil {
			job.NotBefore = &t
		}
	}
	if archivedRaw.Valid {
		if t, err := parseTimeString(archivedRaw.String); err == nil {
			job.ArchivedAt = &t
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: jobs.dedup_key")
}
