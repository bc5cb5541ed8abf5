package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/custody-service/internal/cache"
	"github.com/spec-kit/custody-service/internal/config"
)

// Redis wraps the go-redis client used for token revocation and the
// dashboard cache.
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to Redis and pings it. On failure the client is closed
// and the error returned so callers can run without Redis.
func OpenRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis: REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return &Redis{client: client, prefix: cfg.KeyPrefix}, nil
}

// Denylist returns the revoked-token store.
func (r *Redis) Denylist() *cache.TokenDenylist {
	return cache.NewTokenDenylist(r.client, r.prefix)
}

// StatsCache returns the JSON cache for dashboard aggregates.
func (r *Redis) StatsCache() *cache.JSONCache {
	return cache.NewJSONCache(r.client, r.prefix)
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return errors.New("redis client not configured")
	}
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.client != nil {
		_ = r.client.Close()
	}
}
