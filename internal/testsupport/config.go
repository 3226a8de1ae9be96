package testsupport

import (
	"path/filepath"
	"testing"

	"fetchd/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields, applies any provided options, and creates the
// directory tree.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.TmpDir = filepath.Join(base, "tmp")
	cfg.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfg.Paths.AuthProfileDir = filepath.Join(base, "auth")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Scheduler.PollInterval = 1
	cfg.Notifications.NtfyTopic = ""

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithRecoveryPolicy overrides the stale recovery policy on the test config.
func WithRecoveryPolicy(policy string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Recovery.Policy = policy
	}
}

// WithRetry overrides the retry budget and backoff tiers on the test config.
func WithRetry(maxRetries int, tiers ...int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Retry.MaxRetries = maxRetries
		if len(tiers) > 0 {
			cfg.Retry.BackoffTiers = tiers
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
