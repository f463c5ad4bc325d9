package main

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/subauto/subauto/internal/service"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Scan the configured directories on a schedule and translate new subtitles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if len(cfg.System.WatchDirs) == 0 {
				return fmt.Errorf("WATCH_DIRS is not configured")
			}

			svc, cleanup, err := ctx.newService()
			if err != nil {
				return err
			}
			defer cleanup()

			runner := cron.New()
			watcher := service.NewWatchService(svc, runner)

			if err := watcher.Schedule(cmd.Context()); err != nil {
				return err
			}
			runner.Start()

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %v on schedule %q\n",
				cfg.System.WatchDirs, cfg.System.CronExpr)
			<-cmd.Context().Done()

			<-runner.Stop().Done()
			return nil
		},
	}
}
