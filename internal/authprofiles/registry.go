// Package authprofiles resolves credential profiles for download attempts and
// tracks their health. The registry is the only writer of profile status: a
// run of auth-class failures degrades a profile, the next success restores it.
package authprofiles

import (
	"context"
	"log/slog"
	"time"

	"fetchd/internal/logging"
	"fetchd/internal/queue"
)

// Registry selects auth profiles and records attempt outcomes.
type Registry struct {
	store             *queue.Store
	logger            *slog.Logger
	degradedThreshold int
}

// NewRegistry constructs a registry over the shared store.
func NewRegistry(store *queue.Store, logger *slog.Logger, degradedThreshold int) *Registry {
	if degradedThreshold <= 0 {
		degradedThreshold = 3
	}
	return &Registry{
		store:             store,
		logger:            logging.NewComponentLogger(logger, "auth-registry"),
		degradedThreshold: degradedThreshold,
	}
}

// Resolve returns the profile a job should use: its explicit assignment when
// one is configured and usable, else the healthiest profile for the source.
// ACTIVE profiles win over DEGRADED ones; DISABLED profiles are never
// returned. A nil result means the attempt runs without credentials.
func (r *Registry) Resolve(ctx context.Context, job *queue.Job) (*queue.AuthProfile, error) {
	if job.AuthProfileID != "" {
		profile, err := r.store.GetProfile(ctx, job.AuthProfileID)
		if err != nil {
			return nil, err
		}
		if profile != nil && profile.Status == queue.AuthProfileActive {
			return profile, nil
		}
		// Assigned profile is degraded or gone; fall through to selection.
	}

	profiles, err := r.store.ProfilesBySource(ctx, job.SourceType)
	if err != nil {
		return nil, err
	}
	var degraded *queue.AuthProfile
	for _, profile := range profiles {
		switch profile.Status {
		case queue.AuthProfileActive:
			return profile, nil
		case queue.AuthProfileDegraded:
			if degraded == nil {
				degraded = profile
			}
		}
	}
	// No healthy alternative: a degraded profile is still better than none.
	return degraded, nil
}

// ReportSuccess resets the failure streak and restores a degraded profile.
func (r *Registry) ReportSuccess(ctx context.Context, profile *queue.AuthProfile) error {
	if profile == nil {
		return nil
	}
	now := time.Now().UTC()
	profile.LastSuccessAt = &now
	profile.FailureCountRecent = 0
	if profile.Status == queue.AuthProfileDegraded {
		profile.Status = queue.AuthProfileActive
	}
	if err := r.store.SaveProfileHealth(ctx, profile); err != nil {
		return err
	}
	r.logger.Debug("profile success recorded",
		logging.String("profile_id", profile.ID),
		logging.String(logging.FieldSource, string(profile.SourceType)),
	)
	return nil
}

// ReportAuthFailure increments the failure streak and degrades the profile
// once it crosses the configured threshold. Non-auth failures never reach
// here; they say nothing about credential health.
func (r *Registry) ReportAuthFailure(ctx context.Context, profile *queue.AuthProfile) error {
	if profile == nil {
		return nil
	}
	now := time.Now().UTC()
	profile.LastFailureAt = &now
	profile.FailureCountRecent++
	if profile.FailureCountRecent >= r.degradedThreshold && profile.Status == queue.AuthProfileActive {
		profile.Status = queue.AuthProfileDegraded
		r.logger.Warn("auth profile degraded",
			logging.String("profile_id", profile.ID),
			logging.String(logging.FieldSource, string(profile.SourceType)),
			logging.Int("failure_count", profile.FailureCountRecent),
		)
	}
	return r.store.SaveProfileHealth(ctx, profile)
}
