package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const timeRound = 100 * time.Millisecond

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the saved translation session, if any",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.sessionStore()
			if err != nil {
				return err
			}
			state := store.Load()
			if state == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No active session")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Source:    %s\n", state.SourceFile)
			fmt.Fprintf(out, "Languages: %s -> %s\n", state.SourceLang, state.TargetLang)
			fmt.Fprintf(out, "Model:     %s\n", state.ModelName)
			fmt.Fprintf(out, "Progress:  %d/%d lines (%.1f%%), batch %d\n",
				len(state.CompletedTranslations), state.TotalLines,
				state.ProgressPercent(), state.CurrentBatchIndex)
			fmt.Fprintf(out, "Tokens:    %d prompt, %d completion\n",
				state.PromptTokensUsed, state.CompletionTokensUsed)
			fmt.Fprintf(out, "Updated:   %s\n", state.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard the saved translation session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.sessionStore()
			if err != nil {
				return err
			}
			store.Clear()
			fmt.Fprintln(cmd.OutOrStdout(), "Session cleared")
			return nil
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent translation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := ctx.historyStore()
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tSTATUS\tLINES\tMODEL\tOUTPUT")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
					r.CreatedAt.Local().Format("2006-01-02 15:04"),
					r.Status, r.TranslatedLines, r.TotalLines, r.ModelName, r.OutputFile)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	return cmd
}
