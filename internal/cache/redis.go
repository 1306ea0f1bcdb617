package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config defines connection parameters for Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New returns a go-redis client, or nil when no address is configured.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*redis.Client, error) {
	log = log.With(zap.String("component", "redis"))
	if cfg.Addr == "" {
		log.Info("redis disabled, push stays on this instance")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("redis connected", zap.String("addr", cfg.Addr))
	return client, nil
}
