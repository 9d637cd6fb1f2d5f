package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/oedrhq/engine/config"
)

func continueCMD() *cobra.Command {
	var cfgPath string
	var outPath string

	cmd := &cobra.Command{
		Use:   "continue <run_id>",
		Short: "Resume a run left in_progress by replaying its event journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			orch, runIndex, _, err := bootstrap(cfg)
			if err != nil {
				return err
			}

			outcome := orch.Continue(context.Background(), args[0])
			if runIndex != nil {
				runIndex.Close()
			}
			return reportOutcome(cmd, outcome, outPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "copy the finished report.md to this path in addition to the run directory")

	return cmd
}
