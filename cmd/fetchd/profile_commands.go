package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fetchd/internal/config"
	"fetchd/internal/queue"
)

func newProfileCommand(ctx *commandContext) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage auth profiles",
	}

	profileCmd.AddCommand(newProfileAddCommand(ctx))
	profileCmd.AddCommand(newProfileListCommand(ctx))

	return profileCmd
}

func newProfileAddCommand(ctx *commandContext) *cobra.Command {
	var source string
	var credentialFile string

	cmd := &cobra.Command{
		Use:   "add <profile-id>",
		Short: "Register or update an auth profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceType, ok := queue.ParseSourceType(strings.ToUpper(source))
			if !ok {
				return fmt.Errorf("invalid source type %q", source)
			}
			if strings.TrimSpace(credentialFile) == "" {
				return fmt.Errorf("--credential-file is required")
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				profile, err := store.UpsertProfile(cmd.Context(), args[0], sourceType, credentialFile)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Profile %s registered for %s (%s)\n", profile.ID, profile.SourceType, profile.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Source type the profile serves (YOUTUBE, FACEBOOK, ...)")
	cmd.Flags().StringVar(&credentialFile, "credential-file", "", "Path to the credential file")
	return cmd
}

func newProfileListCommand(ctx *commandContext) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List auth profiles for a source",
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceType, ok := queue.ParseSourceType(strings.ToUpper(source))
			if !ok {
				return fmt.Errorf("invalid source type %q", source)
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				profiles, err := store.ProfilesBySource(cmd.Context(), sourceType)
				if err != nil {
					return err
				}
				if len(profiles) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No profiles registered")
					return nil
				}
				rows := make([][]string, 0, len(profiles))
				for _, profile := range profiles {
					lastSuccess := "-"
					if profile.LastSuccessAt != nil {
						lastSuccess = profile.LastSuccessAt.Format(time.RFC3339)
					}
					rows = append(rows, []string{
						profile.ID,
						string(profile.Status),
						fmt.Sprintf("%d", profile.FailureCountRecent),
						lastSuccess,
					})
				}
				out := renderTable(
					[]string{"ID", "Status", "Recent Failures", "Last Success"},
					rows, 3)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Source type to list profiles for")
	return cmd
}
