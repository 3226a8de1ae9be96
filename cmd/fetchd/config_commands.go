package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fetchd/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage fetchd configuration",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(path)
			if target == "" {
				target = config.DefaultConfigPath()
			}
			if err := config.WriteSample(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sample configuration written to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "output", "o", "", "Destination path for the sample configuration")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state_dir:          %s\n", cfg.Paths.StateDir)
			fmt.Fprintf(out, "tmp_dir:            %s\n", cfg.Paths.TmpDir)
			fmt.Fprintf(out, "archive_dir:        %s\n", cfg.Paths.ArchiveDir)
			fmt.Fprintf(out, "auth_profile_dir:   %s\n", cfg.Paths.AuthProfileDir)
			fmt.Fprintf(out, "log_dir:            %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "max_parallel_jobs:  %d (per source %d)\n", cfg.Scheduler.MaxParallelJobs, cfg.Scheduler.MaxParallelJobsPerSource)
			fmt.Fprintf(out, "max_queue_length:   %d\n", cfg.Scheduler.MaxQueueLength)
			fmt.Fprintf(out, "max_retries:        %d (backoff %v)\n", cfg.Retry.MaxRetries, cfg.Retry.BackoffTiers)
			fmt.Fprintf(out, "recovery_policy:    %s (stale after %ds)\n", cfg.Recovery.Policy, cfg.Recovery.StaleAfter)
			fmt.Fprintf(out, "ntfy_topic:         %s\n", orUnset(cfg.Notifications.NtfyTopic))
			return nil
		},
	}
}

func orUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(unset)"
	}
	return value
}
