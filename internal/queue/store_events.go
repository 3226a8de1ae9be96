package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AppendEvent records a timeline entry for a job. Payload may be nil.
func (s *Store) AppendEvent(ctx context.Context, jobID int64, eventType EventType, payload map[string]any) error {
	encoded, err := encodePayload(payload)
	if err != nil {
		return err
	}
	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO job_events (job_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		jobID,
		eventType,
		encoded,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// EventsForJob returns a job's timeline oldest first.
func (s *Store) EventsForJob(ctx context.Context, jobID int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, job_id, event_type, payload, created_at FROM job_events WHERE job_id = ? ORDER BY id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("events for job: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			event      Event
			payloadRaw sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&event.ID, &event.JobID, &event.Type, &payloadRaw, &createdRaw); err != nil {
			return nil, err
		}
		if payloadRaw.Valid && payloadRaw.String != "" {
			if err := json.Unmarshal([]byte(payloadRaw.String), &event.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			event.CreatedAt = created
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendEventTx(ctx context.Context, tx execer, jobID int64, eventType EventType, payload map[string]any) error {
	encoded, err := encodePayload(payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO job_events (job_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		jobID,
		eventType,
		encoded,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func encodePayload(payload map[string]any) (any, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	return string(encoded), nil
}
