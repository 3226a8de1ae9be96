package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UpsertProfile creates or updates an auth profile's identity fields. Health
// fields are managed separately through SaveProfileHealth.
func (s *Store) UpsertProfile(ctx context.Context, id string, source SourceType, credentialFile string) (*AuthProfile, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("profile id is required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO auth_profiles (id, source_type, credential_file, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             source_type = excluded.source_type,
             credential_file = excluded.credential_file,
             updated_at = excluded.updated_at`,
		id,
		source,
		nullableString(credentialFile),
		AuthProfileActive,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return s.GetProfile(ctx, id)
}

// GetProfile fetches an auth profile by identifier.
func (s *Store) GetProfile(ctx context.Context, id string) (*AuthProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM auth_profiles WHERE id = ?`, id)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// ProfilesBySource returns every profile configured for a source type.
func (s *Store) ProfilesBySource(ctx context.Context, source SourceType) ([]*AuthProfile, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+profileColumns+` FROM auth_profiles WHERE source_type = ? ORDER BY id`,
		source,
	)
	if err != nil {
		return nil, fmt.Errorf("profiles by source: %w", err)
	}
	defer rows.Close()

	var profiles []*AuthProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// SaveProfileHealth persists the health fields of a profile. Only the auth
// profile registry calls this.
func (s *Store) SaveProfileHealth(ctx context.Context, profile *AuthProfile) error {
	if profile == nil {
		return errors.New("profile is nil")
	}
	profile.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE auth_profiles
         SET status = ?, failure_count_recent = ?, last_success_at = ?, last_failure_at = ?, updated_at = ?
         WHERE id = ?`,
		profile.Status,
		profile.FailureCountRecent,
		nullableTime(profile.LastSuccessAt),
		nullableTime(profile.LastFailureAt),
		profile.UpdatedAt.Format(time.RFC3339Nano),
		profile.ID,
	)
	if err != nil {
		return fmt.Errorf("save profile health: %w", err)
	}
	return nil
}

const profileColumns = "id, source_type, credential_file, status, failure_count_recent, last_success_at, last_failure_at, created_at, updated_at"

func scanProfile(scanner interface{ Scan(dest ...any) error }) (*AuthProfile, error) {
	var (
		id             string
		sourceType     string
		credentialFile sql.NullString
		statusStr      string
		failureCount   int
		lastSuccessRaw sql.NullString
		lastFailureRaw sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourceType,
		&credentialFile,
		&statusStr,
		&failureCount,
		&lastSuccessRaw,
		&lastFailureRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	profile := &AuthProfile{
		ID:                 id,
		SourceType:         SourceType(sourceType),
		CredentialFile:     credentialFile.String,
		Status:             AuthProfileStatus(statusStr),
		FailureCountRecent: failureCount,
	}
	if lastSuccessRaw.Valid {
		if t, err := parseTimeString(lastSuccessRaw.String); err == nil {
			profile.LastSuccessAt = &t
		}
	}
	if lastFailureRaw.Valid {
		if t, err := parseTimeString(lastFailureRaw.String); err == nil {
			profile.LastFailureAt = &t
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		profile.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		profile.UpdatedAt = updated
	}
	return profile, nil
}
