package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fetchd/internal/config"
	"fetchd/internal/logging"
	"fetchd/internal/queue"
	"fetchd/internal/submission"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var jobType string
	var quality string
	var profile string

	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Submit a media URL for download",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedType, ok := queue.ParseJobType(strings.ToUpper(jobType))
			if !ok {
				return fmt.Errorf("invalid job type %q (expected VIDEO or AUDIO)", jobType)
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				svc := submission.NewService(store, logging.NewNop())
				result, err := svc.Submit(cmd.Context(), submission.Request{
					Text:             strings.Join(args, " "),
					JobType:          parsedType,
					RequestedQuality: quality,
					AuthProfileID:    profile,
					RequesterID:      "cli",
				})
				if err != nil {
					return err
				}
				if result.Reused {
					fmt.Fprintf(cmd.OutOrStdout(), "Attached to existing job %d (%s)\n", result.Job.ID, result.Job.Status)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d (%s %s)\n", result.Job.ID, result.Job.SourceType, result.Job.JobType)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&jobType, "type", "t", "VIDEO", "Job type (VIDEO or AUDIO)")
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "Requested quality, e.g. 720p")
	cmd.Flags().StringVar(&profile, "profile", "", "Auth profile ID to use for this job")
	return cmd
}
