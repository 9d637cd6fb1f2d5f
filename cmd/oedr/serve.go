package main

import (
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/cache"
	"github.com/oedrhq/engine/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP status surface (run submission, polling, /metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if addr != "" {
				cfg.Server.Address = addr
			}

			orch, runIndex, claims, err := bootstrap(cfg)
			if err != nil {
				return err
			}
			if runIndex != nil {
				defer runIndex.Close()
			}

			var redisClient *redis.Client
			if redisClaims, ok := claims.(*cache.RedisHashClaims); ok {
				redisClient = redisClaims.Client()
			}

			return server.Run(cfg.Server, server.Deps{Orch: orch, Store: runIndex, Redis: redisClient})
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overriding server.address")

	return cmd
}
