package enrich

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps fetched pages so a posting that shows up in several alert
// emails is only downloaded once per TTL.
type Cache interface {
	Get(ctx context.Context, url string) (string, bool)
	Set(ctx context.Context, url, html string)
}

type NopCache struct{}

func (NopCache) Get(context.Context, string) (string, bool) { return "", false }
func (NopCache) Set(context.Context, string, string)        {}

type RedisCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

const cacheKeyPrefix = "jobmail:page:"

func NewRedisCache(rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{rdb: rdb, ttl: ttl, logger: logger.With("component", "page_cache")}
}

func cacheKey(url string) string {
	sum := sha1.Sum([]byte(url))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, url string) (string, bool) {
	val, err := c.rdb.Get(ctx, cacheKey(url)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.logger.Warn("cache get failed", "url", url, "err", err)
		return "", false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, url, html string) {
	if err := c.rdb.Set(ctx, cacheKey(url), html, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", "url", url, "err", err)
	}
}
