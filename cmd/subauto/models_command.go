package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/subauto/subauto/internal/llm"
	"github.com/subauto/subauto/internal/service"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models offered by the configured provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			provider, err := service.NewProvider(cfg)
			if err != nil {
				return err
			}

			manager := llm.NewManager(provider, cfg.LLM.Model)
			if ok, msg := manager.Validate(); !ok {
				return fmt.Errorf("provider validation failed: %s", msg)
			}

			selected := manager.SelectedModel()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPROMPT $/1M\tCOMPLETION $/1M\tCONTEXT")
			for _, m := range manager.AvailableModels() {
				marker := " "
				if m.Name == selected {
					marker = "*"
				}
				fmt.Fprintf(w, "%s %s\t%.2f\t%.2f\t%d\n",
					marker, m.Name, m.PromptPrice, m.CompletionPrice, m.InputTokenLimit)
			}
			return w.Flush()
		},
	}
}
