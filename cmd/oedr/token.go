package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/runtime"
)

func tokenCMD() *cobra.Command {
	var cfgPath string
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the oedr serve HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			secret, err := runtime.LoadJWTSecret(cfg.Server.JWTSecret)
			if err != nil {
				return err
			}
			tok, err := runtime.SignJWT(subject, secret, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
