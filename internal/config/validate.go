package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants before any component starts.
func (c *Config) Validate() error {
	var problems []string

	if c.Paths.StateDir == "" {
		problems = append(problems, "paths.state_dir must be set")
	}
	if c.Paths.TmpDir == "" {
		problems = append(problems, "paths.tmp_dir must be set")
	}
	if c.Paths.ArchiveDir == "" {
		problems = append(problems, "paths.archive_dir must be set")
	}
	if c.Scheduler.MaxParallelJobs <= 0 {
		problems = append(problems, "scheduler.max_parallel_jobs must be positive")
	}
	if c.Scheduler.MaxParallelJobsPerSource <= 0 {
		problems = append(problems, "scheduler.max_parallel_jobs_per_source must be positive")
	}
	if c.Scheduler.MaxParallelJobsPerSource > c.Scheduler.MaxParallelJobs {
		problems = append(problems, "scheduler.max_parallel_jobs_per_source cannot exceed scheduler.max_parallel_jobs")
	}
	if c.Scheduler.MaxQueueLength <= 0 {
		problems = append(problems, "scheduler.max_queue_length must be positive")
	}
	if c.Scheduler.PollInterval <= 0 {
		problems = append(problems, "scheduler.poll_interval must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		problems = append(problems, "retry.max_retries cannot be negative")
	}
	if len(c.Retry.BackoffTiers) == 0 {
		problems = append(problems, "retry.backoff_tiers must contain at least one delay")
	}
	for i, tier := range c.Retry.BackoffTiers {
		if tier <= 0 {
			problems = append(problems, fmt.Sprintf("retry.backoff_tiers[%d] must be positive", i))
		}
		if i > 0 && tier < c.Retry.BackoffTiers[i-1] {
			problems = append(problems, "retry.backoff_tiers must be non-decreasing")
			break
		}
	}
	if c.Recovery.StaleAfter <= 0 {
		problems = append(problems, "recovery.stale_after must be positive")
	}
	switch c.Recovery.Policy {
	case RecoveryPolicyFail, RecoveryPolicyRequeue:
	default:
		problems = append(problems, fmt.Sprintf("recovery.policy must be %q or %q", RecoveryPolicyFail, RecoveryPolicyRequeue))
	}
	if c.Pipeline.MetadataTimeout <= 0 {
		problems = append(problems, "pipeline.metadata_timeout must be positive")
	}
	if c.Pipeline.DownloadTimeout <= 0 {
		problems = append(problems, "pipeline.download_timeout must be positive")
	}
	if c.Pipeline.MaxFileSizeMB <= 0 {
		problems = append(problems, "pipeline.max_file_size_mb must be positive")
	}
	if c.Auth.DegradedThreshold <= 0 {
		problems = append(problems, "auth.degraded_threshold must be positive")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
