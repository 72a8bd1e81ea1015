package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"clipstack/internal/usecase"
)

type Sweeper interface {
	Sweep(ctx context.Context) (usecase.SweepReport, error)
}

type Config struct {
	// Schedule is a cron spec or descriptor such as "@every 1m".
	Schedule   string
	RunOnStart bool
}

// Run reconciles outstanding renders on the configured schedule until ctx
// is cancelled. A sweep that overruns its slot makes the next one skip.
func Run(ctx context.Context, cfg Config, s Sweeper) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(cfg.Schedule, func() { sweep(ctx, s) }); err != nil {
		return fmt.Errorf("invalid worker schedule %q: %w", cfg.Schedule, err)
	}

	if cfg.RunOnStart {
		sweep(ctx, s)
	}

	c.Start()
	log.Ctx(ctx).Info().Str("schedule", cfg.Schedule).Msg("render sweeper started")

	<-ctx.Done()
	log.Info().Msg("render sweeper is shutting down...")
	<-c.Stop().Done()
	log.Info().Msg("render sweeper stopped")
	return nil
}

func sweep(ctx context.Context, s Sweeper) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()

	rep, err := s.Sweep(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("sweep failed")
		return
	}
	log.Ctx(ctx).Info().
		Int("checked", rep.Checked).
		Int("done", rep.Done).
		Int("failed", rep.Failed).
		Int("in_progress", rep.InProgress).
		Int("errors", rep.Errors).
		Dur("took", time.Since(start)).
		Msg("sweep finished")
}

// cronLogger routes cron's internal logging to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
