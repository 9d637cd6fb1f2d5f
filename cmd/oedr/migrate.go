package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/store"
)

func migrateCMD() *cobra.Command {
	var cfgPath string
	var dir string
	var direction string
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply run-index schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if cfg.Storage.Postgres.URL == "" {
				return fmt.Errorf("migrate requires storage.postgres.url to be configured")
			}
			if dir == "" {
				dir = cfg.Storage.Postgres.MigrationsDir
			}
			return store.Migrate(dir, cfg.Storage.Postgres.URL, direction, steps)
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&dir, "dir", "", "migrations source, e.g. file://migrations (default: storage.postgres.migrations_dir)")
	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	return cmd
}
