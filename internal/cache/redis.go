package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const redisNamespace = "agristat:"

// Redis keeps cached responses out of process memory, so a large cache does
// not grow the server's heap and survives a restart until its TTL. Callers key
// entries by snapshot ID, which is unique per build and per process, so two
// instances on one Redis never serve each other's entries.
type Redis struct {
	rc     *redis.Client
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
	log    *zap.Logger
}

// NewRedis wraps an existing client.
func NewRedis(rc *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{
		rc:  rc,
		ttl: ttl,
		log: zap.L().With(zap.String("component", "cache.redis")),
	}
}

// NewRedisFromURL parses a redis:// URL and opens a client.
func NewRedisFromURL(url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}
	return NewRedis(redis.NewClient(opts), ttl), nil
}

// Get returns a cached body; redis errors are logged and count as misses.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.rc.Get(ctx, redisNamespace+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Debug("get failed", zap.String("key", key), zap.Error(err))
		}
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return b, true
}

// Set stores a body with the configured TTL.
func (c *Redis) Set(ctx context.Context, key string, data []byte) {
	if err := c.rc.Set(ctx, redisNamespace+key, data, c.ttl).Err(); err != nil {
		c.log.Debug("set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidatePrefix scans and deletes matching keys.
func (c *Redis) InvalidatePrefix(ctx context.Context, prefix string) {
	iter := c.rc.Scan(ctx, 0, redisNamespace+prefix+"*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			c.del(ctx, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("scan failed", zap.String("prefix", prefix), zap.Error(err))
	}
	c.del(ctx, batch)
}

func (c *Redis) del(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := c.rc.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("delete failed", zap.Int("keys", len(keys)), zap.Error(err))
	}
}

// Stats reports hit counters; entry counts are not tracked for redis.
func (c *Redis) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	return Stats{
		Driver:  "redis",
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
	}
}

// Close closes the client.
func (c *Redis) Close() error {
	return c.rc.Close()
}
