package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stellar-insights/ledger-stream-service/internal/config"
)

const scanBatchSize = 100

// Cache is a key-value store with TTL semantics used for derived data.
// The relational store stays authoritative; every cached value can be rebuilt.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	InvalidatePattern(ctx context.Context, pattern string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

func New(ctx context.Context, cfg config.CacheConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid cache address: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}
	return &RedisCache{client: client, defaultTTL: cfg.DefaultTTL}, nil
}

// Get returns the cached value and whether it was present.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key. A zero ttl falls back to the configured default
// so that nothing is cached forever.
func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

// InvalidatePattern deletes every key matching a glob pattern and returns the
// number of deleted keys. SCAN is used instead of KEYS to avoid blocking redis.
func (c *RedisCache) InvalidatePattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	keys := make([]string, 0, scanBatchSize)
	iter := c.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == scanBatchSize {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	if len(keys) > 0 {
		n, err := c.client.Del(ctx, keys...).Result()
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetJSON decodes the cached JSON value under key into a T.
func GetJSON[T any](ctx context.Context, c Cache, key string) (*T, bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached value %s: %w", key, err)
	}
	return &value, true, nil
}

func SetJSON[T any](ctx context.Context, c Cache, key string, value T, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cached value %s: %w", key, err)
	}
	return c.Set(ctx, key, string(raw), ttl)
}
