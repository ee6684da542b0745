// Package cache stores finished backtest results in Redis keyed by the
// run's config hash and data checksum.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"rsi-martingale-backtest/services/config"
	"rsi-martingale-backtest/services/engine"
)

const keyPrefix = "backtest:result:"

// ResultCache implements result caching using Redis
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewResultCache connects to Redis and verifies the connection.
func NewResultCache(cfg config.RedisConfig, logger *zap.Logger) (*ResultCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewResultCacheWithClient(rdb, cfg.TTL, logger), nil
}

func NewResultCacheWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{client: client, ttl: ttl, logger: logger}
}

// Key is the Redis key of a run.
func Key(m engine.RunManifest) string { return keyPrefix + m.CacheKey() }

// Get returns the cached result for key, if any.
func (c *ResultCache) Get(ctx context.Context, key string) (*engine.Result, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var res engine.Result
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		c.logger.Warn("dropping unreadable cached result", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	return &res, true, nil
}

// Set stores a result with the configured TTL.
func (c *ResultCache) Set(ctx context.Context, key string, res *engine.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := c.client.Set(ctx, key, string(payload), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *ResultCache) Close() error { return c.client.Close() }
