package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/store"
)

func listCMD() *cobra.Command {
	var cfgPath string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs from the Postgres run index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if cfg.Storage.Postgres.URL == "" {
				return fmt.Errorf("list requires storage.postgres.url to be configured")
			}
			st, err := store.Open(cfg.Storage.Postgres.URL)
			if err != nil {
				return fmt.Errorf("open run index: %w", err)
			}
			defer st.Close()

			runs, err := st.ListRuns(context.Background(), status, limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, r := range runs {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", r.RunID, r.Status, r.StartedAt.Format("2006-01-02T15:04:05Z07:00"), r.Query)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (in_progress, completed, partial, fatal)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of runs to list")

	return cmd
}
