package queue

import (
	"context"
	"errors"
	"testing"
)

func TestRetryOnBusyRetriesLockedDatabase(t *testing.T) {
	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	wantErr := errors.New("no such table: jobs")
	err := retryOnBusy(context.Background(), func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-busy errors must not retry, got %d attempts", calls)
	}
}

func TestRetryOnBusyGivesUpEventually(t *testing.T) {
	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})
	if err == nil {
		t.Fatal("expected the busy error after exhausting attempts")
	}
	if calls != busyRetryAttempts {
		t.Fatalf("expected %d attempts, got %d", busyRetryAttempts, calls)
	}
}

func TestIsSQLiteBusy(t *testing.T) {
	if isSQLiteBusy(nil) {
		t.Fatal("nil is not busy")
	}
	if !isSQLiteBusy(errors.New("database is locked")) {
		t.Fatal("locked message should classify as busy")
	}
	if isSQLiteBusy(errors.New("UNIQUE constraint failed: jobs.dedup_key")) {
		t.Fatal("constraint violations are not busy")
	}
}
