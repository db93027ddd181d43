// Package cache holds short-lived copies of feed responses that are served without mirroring.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gridpicks/engine/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache stores JSON values under string keys with a TTL
type Cache interface {
	// GetJSON decodes the value at key into dst. found is false on a miss.
	GetJSON(ctx context.Context, key string, dst any) (found bool, err error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Config holds Redis connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache is a Cache backed by Redis
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg Config) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("Connected to Redis")
	return &RedisCache{rdb: rdb, prefix: "gridpicks:"}, nil
}

// GetJSON implements Cache
func (c *RedisCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	start := time.Now()
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	metrics.RecordCacheOperation("get", time.Since(start).Seconds())

	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheMiss()
		return false, nil
	}
	if err != nil {
		metrics.RecordError("cache", "get")
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		metrics.RecordError("cache", "decode")
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}

	metrics.RecordCacheHit()
	return true, nil
}

// SetJSON implements Cache
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}

	start := time.Now()
	err = c.rdb.Set(ctx, c.prefix+key, raw, ttl).Err()
	metrics.RecordCacheOperation("set", time.Since(start).Seconds())

	if err != nil {
		metrics.RecordError("cache", "set")
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis client
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// Nop never stores anything; every read is a miss
type Nop struct{}

func (Nop) GetJSON(context.Context, string, any) (bool, error) {
	metrics.RecordCacheMiss()
	return false, nil
}

func (Nop) SetJSON(context.Context, string, any, time.Duration) error { return nil }

// Key joins key parts with ':'
func Key(parts ...any) string {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += fmt.Sprint(p)
	}
	return key
}
