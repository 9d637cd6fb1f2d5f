package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/oedrhq/engine/config"
)

func diffCMD() *cobra.Command {
	var cfgPath string
	var artifact string

	cmd := &cobra.Command{
		Use:   "diff <run_id_a> <run_id_b>",
		Short: "Structurally diff an artifact (outline.md or report.md) between two runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			a, err := readArtifact(cfg.General.ArtifactsDir, args[0], artifact)
			if err != nil {
				return err
			}
			b, err := readArtifact(cfg.General.ArtifactsDir, args[1], artifact)
			if err != nil {
				return err
			}

			diff := cmp.Diff(strings.Split(a, "\n"), strings.Split(b, "\n"))
			if diff == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is identical between %s and %s\n", artifact, args[0], args[1])
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), diff)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&artifact, "artifact", "outline.md", "artifact to diff: outline.md or report.md")

	return cmd
}

func readArtifact(artifactsDir, runID, artifact string) (string, error) {
	data, err := os.ReadFile(filepath.Join(artifactsDir, runID, artifact))
	if err != nil {
		return "", fmt.Errorf("read %s for %s: %w", artifact, runID, err)
	}
	return string(data), nil
}
