package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"fetchd/internal/config"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadCapacities(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.MaxParallelJobs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero max_parallel_jobs")
	}

	cfg = config.Default()
	cfg.Scheduler.MaxParallelJobsPerSource = cfg.Scheduler.MaxParallelJobs + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when per-source cap exceeds global cap")
	}
}

func TestValidateRejectsDecreasingBackoff(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.BackoffTiers = []int{120, 30}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for decreasing backoff tiers")
	}
}

func TestValidateRejectsUnknownRecoveryPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Recovery.Policy = "panic"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown recovery policy")
	}
}

func TestWriteSampleRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("sample not written: %v", err)
	}

	cfg, usedPath, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if usedPath != path {
		t.Fatalf("expected used path %s, got %s", path, usedPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestLoadMissingDefaultFallsBackToDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, usedPath, err := config.Load("")
	if err != nil {
		t.Fatalf("Load without a config file should fall back to defaults: %v", err)
	}
	if usedPath != "" {
		t.Fatalf("expected empty used path for defaults, got %s", usedPath)
	}
	defaults := config.Default()
	if cfg.Scheduler.MaxParallelJobs != defaults.Scheduler.MaxParallelJobs {
		t.Fatalf("expected default scheduler capacity, got %d", cfg.Scheduler.MaxParallelJobs)
	}
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	if _, _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for explicitly named missing config file")
	}
}

func TestEnsureDirectoriesCreatesTree(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.TmpDir = filepath.Join(base, "tmp")
	cfg.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfg.Paths.AuthProfileDir = filepath.Join(base, "auth")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.TmpDir, cfg.Paths.ArchiveDir, cfg.Paths.AuthProfileDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
