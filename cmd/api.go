package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"clipstack/internal/api"
	"clipstack/internal/config"
)

func apiCmd() *cobra.Command {
	var port int
	var command = &cobra.Command{
		Use:   "api",
		Short: "Start API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("port") {
				cfg.HTTP.Port = port
			}

			ctx := context.Background()
			d, err := buildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.store.EnsureSchema(ctx); err != nil {
				return err
			}

			log.Info().Str("database", cfg.Database.Driver).Bool("redis_lock", cfg.Redis.Addr != "").Msg("API server starting")
			server := api.NewServer(cfg.HTTP, d.lifecycle)
			server.Run(cfg.HTTP.Port)
			return nil
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 8080, "Port to run the server on")
	return command
}
