package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clipstack/internal/config"
	"clipstack/internal/worker"
)

func workerCmd() *cobra.Command {
	var (
		schedule   string
		runOnStart bool
	)

	var command = &cobra.Command{
		Use:   "worker",
		Short: "Start the render status sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if !cmd.Flags().Changed("schedule") {
				schedule = cfg.Worker.Schedule
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := buildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			return worker.Run(ctx, worker.Config{
				Schedule:   schedule,
				RunOnStart: runOnStart,
			}, d.lifecycle)
		},
	}

	command.Flags().StringVar(&schedule, "schedule", "@every 1m", "Cron schedule for reconciling pending renders")
	command.Flags().BoolVar(&runOnStart, "run-on-start", true, "Sweep once before the first scheduled run")

	return command
}
