package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/journal"
)

func replayCMD() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "replay <run_id>",
		Short: "Print every event a run's journal recorded, in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			runDir := filepath.Join(cfg.General.ArtifactsDir, args[0])
			events, err := journal.Replay(filepath.Join(runDir, "events.jsonl"))
			if err != nil {
				return fmt.Errorf("replay %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			for _, e := range events {
				fmt.Fprintf(out, "[%s] step=%d kind=%s payload=%s\n", e.TS.Format("2006-01-02T15:04:05Z07:00"), e.Step, e.Kind, string(e.Payload))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	return cmd
}
