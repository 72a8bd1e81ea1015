package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"clipstack/internal/config"
	"clipstack/internal/infra/cloudinary"
	"clipstack/internal/infra/memlock"
	"clipstack/internal/infra/postgres"
	"clipstack/internal/infra/redislock"
	"clipstack/internal/infra/shotstack"
	"clipstack/internal/infra/sqlite"
	"clipstack/internal/ports"
	"clipstack/internal/usecase"
)

type deps struct {
	store     ports.TaskStore
	lifecycle *usecase.Lifecycle
	closers   []func() error
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}

func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	d := &deps{}

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	d.store = store
	d.closers = append(d.closers, store.Close)

	var locker ports.Locker
	if cfg.Redis.Addr != "" {
		rl := redislock.New(cfg.Redis)
		if err := rl.Connect(ctx); err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, rl.Close)
		locker = rl
	} else {
		log.Warn().Msg("REDIS_ADDR is not set, render locks are process-local")
		locker = memlock.New()
	}

	d.lifecycle = usecase.NewLifecycle(
		store,
		cloudinary.New(cfg.Cloudinary),
		shotstack.New(cfg.Shotstack),
		locker,
	)
	return d, nil
}

func openStore(ctx context.Context, cfg config.Database) (ports.TaskStore, error) {
	switch cfg.Driver {
	case "postgres":
		if cfg.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		s, err := postgres.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
