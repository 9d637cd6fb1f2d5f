package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/orchestrator"
)

func runCMD() *cobra.Command {
	var cfgPath string
	var queryFile string
	var outPath string

	cmd := &cobra.Command{
		Use:   "run [query]",
		Short: "Start a new research run",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := resolveQuery(args, queryFile)
			if err != nil {
				return err
			}

			cfg := config.LoadConfig(cfgPath)
			orch, runIndex, _, err := bootstrap(cfg)
			if err != nil {
				return err
			}

			outcome := orch.Run(context.Background(), query)
			if runIndex != nil {
				runIndex.Close()
			}
			return reportOutcome(cmd, outcome, outPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&queryFile, "query-file", "", "read the research query from a file instead of an argument")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "copy the finished report.md to this path in addition to the run directory")

	return cmd
}

func resolveQuery(args []string, queryFile string) (string, error) {
	if queryFile != "" {
		data, err := os.ReadFile(queryFile)
		if err != nil {
			return "", fmt.Errorf("read query file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("a query is required, either as an argument or via --query-file")
	}
	return strings.Join(args, " "), nil
}

// reportOutcome prints the run outcome and sets the process exit code:
// 0 for a completed report, 2 for a partial one, 1 for a fatal failure.
func reportOutcome(cmd *cobra.Command, outcome orchestrator.Outcome, outPath string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run_id: %s\nstatus: %s\n", outcome.RunID, outcome.Status)

	if outcome.Err != nil {
		fmt.Fprintf(out, "error: %v\n", outcome.Err)
		os.Exit(1)
	}

	fmt.Fprintf(out, "report: %s\n", outcome.ReportPath)
	if outPath != "" && outcome.ReportPath != "" {
		data, err := os.ReadFile(outcome.ReportPath)
		if err == nil {
			_ = os.WriteFile(outPath, data, 0o644)
		}
	}

	if outcome.Status == orchestrator.StatusPartial {
		os.Exit(2)
	}
	return nil
}
