package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fetchd/internal/config"
	"fetchd/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the job queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				if health.Total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := [][]string{
					{string(queue.StatusPending), strconv.Itoa(health.Pending)},
					{string(queue.StatusQueued), strconv.Itoa(health.Queued)},
					{string(queue.StatusRunning), strconv.Itoa(health.Running)},
					{string(queue.StatusCompleted), strconv.Itoa(health.Completed)},
					{string(queue.StatusFailed), strconv.Itoa(health.Failed)},
				}
				out := renderTable([]string{"Status", "Count"}, rows, 2)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]queue.Status, 0, len(listStatuses))
			for _, raw := range listStatuses {
				status, ok := queue.ParseStatus(strings.ToUpper(raw))
				if !ok {
					return fmt.Errorf("invalid status %q", raw)
				}
				statuses = append(statuses, status)
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				jobs, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						string(job.Status),
						string(job.SourceType),
						string(job.JobType),
						strconv.Itoa(job.RetryCount),
						truncate(job.URL, 60),
					})
				}
				out := renderTable(
					[]string{"ID", "Status", "Source", "Type", "Retries", "URL"},
					rows, 1, 5)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&listStatuses, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job with its event timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				job, err := store.GetJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job %d\n", job.ID)
				fmt.Fprintf(out, "  URL:        %s\n", job.URL)
				fmt.Fprintf(out, "  Source:     %s\n", job.SourceType)
				fmt.Fprintf(out, "  Type:       %s\n", job.JobType)
				fmt.Fprintf(out, "  Status:     %s\n", job.Status)
				fmt.Fprintf(out, "  Retries:    %d\n", job.RetryCount)
				if job.FinalTitle != "" {
					fmt.Fprintf(out, "  Title:      %s\n", job.FinalTitle)
				}
				if job.FilePath != "" {
					fmt.Fprintf(out, "  File:       %s\n", job.FilePath)
				}
				if job.ErrorType != "" {
					fmt.Fprintf(out, "  Error:      %s: %s\n", job.ErrorType, job.ErrorMessage)
				}
				fmt.Fprintf(out, "  Created:    %s\n", job.CreatedAt.Format(time.RFC3339))
				fmt.Fprintf(out, "  Updated:    %s\n", job.UpdatedAt.Format(time.RFC3339))

				events, err := store.EventsForJob(cmd.Context(), job.ID)
				if err != nil {
					return err
				}
				if len(events) == 0 {
					return nil
				}
				fmt.Fprintln(out, "\nTimeline:")
				for _, event := range events {
					fmt.Fprintf(out, "  %s  %s", event.CreatedAt.Format(time.RFC3339), event.Type)
					if len(event.Payload) > 0 {
						fmt.Fprintf(out, "  %v", event.Payload)
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max-1] + "…"
}
