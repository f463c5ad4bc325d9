package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/subauto/subauto/internal/media"
)

func newTracksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tracks <container>",
		Short: "List subtitle tracks embedded in a media container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			tracks, err := media.NewOperator(absPath).ListSubtitleTracks()
			if err != nil {
				return err
			}
			if len(tracks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No subtitle tracks found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLANG\tCODEC\tDEFAULT\tNAME")
			for _, t := range tracks {
				fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%s\n", t.ID, t.Language, t.Codec, t.Default, t.Name)
			}
			return w.Flush()
		},
	}
}
