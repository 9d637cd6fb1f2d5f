package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/spf13/cobra"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/orchestrator"
	"github.com/oedrhq/engine/internal/store"
)

// daemonCMD runs an unattended sweep, on a cron schedule, that resumes any
// run the run index still shows in_progress -- recovering from a crashed
// or killed `oedr run`/`oedr serve` process without an operator having to
// notice and run `oedr continue` by hand.
func daemonCMD() *cobra.Command {
	var cfgPath string
	var cronSpec string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Periodically auto-resume runs left in_progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if cfg.Storage.Postgres.URL == "" {
				return fmt.Errorf("daemon requires storage.postgres.url to be configured")
			}

			expr, err := cronexpr.Parse(cronSpec)
			if err != nil {
				return err
			}

			orch, runIndex, _, err := bootstrap(cfg)
			if err != nil {
				return err
			}
			defer runIndex.Close()

			logger := log.New(log.Writer(), "[DAEMON] ", log.LstdFlags)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for {
				next := expr.Next(time.Now())
				wait := time.Until(next)
				logger.Printf("next sweep at %s", next.Format(time.RFC3339))
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(wait):
					sweep(ctx, logger, orch, runIndex, cfg.General.ResumePollInt)
				}
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&cronSpec, "cron", "*/10 * * * *", "cron schedule for sweeping stale in_progress runs")

	return cmd
}

func sweep(ctx context.Context, logger *log.Logger, orch *orchestrator.Orchestrator, runIndex *store.Store, staleAfter time.Duration) {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	stale, err := runIndex.StaleInProgress(ctx, time.Now().Add(-staleAfter))
	if err != nil {
		logger.Printf("list stale runs: %v", err)
		return
	}
	for _, r := range stale {
		logger.Printf("resuming stale run %s", r.RunID)
		outcome := orch.Continue(ctx, r.RunID)
		if outcome.Err != nil {
			logger.Printf("resume %s failed: %v", r.RunID, outcome.Err)
		}
	}
}
