package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"clipstack/internal/config"
	"clipstack/internal/ports"
)

const keyPrefix = "clipstack:lock:"

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ ports.Locker = (*Client)(nil)

type Client struct {
	Cfg config.Redis
	Rdb *redis.Client
}

func New(cfg config.Redis) *Client {
	log.Info().Msgf("connecting to redis at %s", cfg.Addr)
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{Cfg: cfg, Rdb: c}
}

func (c *Client) Connect(ctx context.Context) error {
	if err := c.Rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	log.Ctx(ctx).Info().Msg("connected to redis")
	return nil
}

func (c *Client) Close() error {
	return c.Rdb.Close()
}

// TryLock sets the key if absent. The lock expires after LockTTL even if
// the holder never releases it.
func (c *Client) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	full := keyPrefix + key

	ok, err := c.Rdb.SetNX(ctx, full, token, c.ttl()).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The request context may already be cancelled here.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, c.Rdb, []string{full}, token).Err(); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("failed to release lock")
		}
	}
	return release, true, nil
}

func (c *Client) ttl() time.Duration {
	if c.Cfg.LockTTL <= 0 {
		return 45 * time.Second
	}
	return c.Cfg.LockTTL
}
