// Package submission turns raw user input into persisted jobs. It owns URL
// extraction, source detection, dedup key derivation, and the attach path
// for duplicate requests.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fetchd/internal/logging"
	"fetchd/internal/queue"
	"fetchd/internal/sources"
)

// Request is one submission from a user surface.
type Request struct {
	// Text is the raw user input; the first URL in it is the target.
	Text             string
	JobType          queue.JobType
	RequestedQuality string
	RequesterID      string
	ChannelID        string
	AuthProfileID    string
}

// Result reports the job a submission resolved to. Reused is true when the
// request attached to an already-active job instead of creating one.
type Result struct {
	Job    *queue.Job
	Reused bool
}

// Service validates and persists submissions.
type Service struct {
	store  *queue.Store
	logger *slog.Logger
}

// NewService builds a submission service over the store.
func NewService(store *queue.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logging.NewComponentLogger(logger, "submission"),
	}
}

// Submit resolves a request to a job. Duplicate active requests attach to
// the existing job; the race between two concurrent submitters is settled by
// the store's unique constraint, never by the caller.
func (s *Service) Submit(ctx context.Context, req Request) (*Result, error) {
	rawURL := sources.ExtractFirstURL(req.Text)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: no url found in submission", sources.ErrInvalidURL)
	}
	normalized, err := sources.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	sourceType, err := sources.Detect(normalized)
	if err != nil {
		return nil, err
	}

	jobType := req.JobType
	if jobType == "" {
		jobType = queue.JobTypeVideo
	}
	quality := strings.TrimSpace(req.RequestedQuality)

	dedupKey := sources.DedupKey(sourceType, normalized, jobType, quality)

	if existing, err := s.attach(ctx, dedupKey, req); err != nil {
		return nil, err
	} else if existing != nil {
		return &Result{Job: existing, Reused: true}, nil
	}

	job, err := s.store.CreateJob(ctx, queue.NewJob{
		URL:              normalized,
		SourceType:       sourceType,
		JobType:          jobType,
		RequestedQuality: quality,
		DedupKey:         dedupKey,
		AuthProfileID:    req.AuthProfileID,
		RequesterID:      req.RequesterID,
		ChannelID:        req.ChannelID,
	})
	if err != nil {
		if errors.Is(err, queue.ErrDuplicateActiveJob) {
			// Lost the insert race; attach to the winner.
			if existing, attachErr := s.attach(ctx, dedupKey, req); attachErr == nil && existing != nil {
				return &Result{Job: existing, Reused: true}, nil
			}
			return nil, fmt.Errorf("duplicate active job for %s: %w", normalized, err)
		}
		return nil, err
	}

	s.logger.Info("job submitted", logging.Args(
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSource, string(sourceType)),
		logging.String("job_type", string(jobType)),
	)...)
	return &Result{Job: job}, nil
}

// attach looks up an active job holding the dedup key and records the reuse
// on its timeline.
func (s *Service) attach(ctx context.Context, dedupKey string, req Request) (*queue.Job, error) {
	existing, err := s.store.FindActiveByDedupKey(ctx, dedupKey)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// Key is free.
		return nil, nil
	}
	if err := s.store.AppendEvent(ctx, existing.ID, queue.EventJobReused, map[string]any{
		"requester_id": req.RequesterID,
		"channel_id":   req.ChannelID,
	}); err != nil {
		s.logger.Warn("record job reuse failed", logging.Args(
			logging.Int64(logging.FieldJobID, existing.ID),
			logging.Error(err),
		)...)
	}
	s.logger.Info("submission attached to active job", logging.Args(
		logging.Int64(logging.FieldJobID, existing.ID),
	)...)
	return existing, nil
}
