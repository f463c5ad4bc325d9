package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/subauto/subauto/internal/service"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var trackID int
	var output string
	var merge bool

	cmd := &cobra.Command{
		Use:   "run <path>",
		Short: "Translate a subtitle file or a track of a media container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if _, err := os.Stat(absPath); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}

			svc, cleanup, err := ctx.newService()
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.RunJob(cmd.Context(), service.JobRequest{
				InputPath:  absPath,
				TrackID:    trackID,
				OutputPath: output,
				MergeBack:  merge,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d/%d lines, %d failed batches, ~%d tokens, %s)\n",
				result.OutputFile, result.TranslatedLines, result.TotalLines,
				result.FailedBatches, result.PromptTokens+result.CompletionTokens,
				result.Duration.Round(timeRound))
			return nil
		},
	}

	cmd.Flags().IntVarP(&trackID, "track", "t", -1, "Subtitle track ID to extract from a container (-1 = auto)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output subtitle path (default: alongside the input)")
	cmd.Flags().BoolVar(&merge, "merge", false, "Remux the translated subtitle into a new container")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume the interrupted translation session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.sessionStore()
			if err != nil {
				return err
			}
			if !store.HasResumableState("") {
				return errors.New("no resumable session found")
			}
			state := store.Current()

			svc, cleanup, err := ctx.newService()
			if err != nil {
				return err
			}
			defer cleanup()

			fmt.Fprintf(cmd.OutOrStdout(), "Resuming %s (%.1f%% done)\n",
				state.SourceFile, state.ProgressPercent())

			result, err := svc.RunJob(cmd.Context(), service.JobRequest{
				InputPath: state.SourceFile,
				TrackID:   -1,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d/%d lines)\n",
				result.OutputFile, result.TranslatedLines, result.TotalLines)
			return nil
		},
	}
}
