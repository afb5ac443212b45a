package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter is a fixed-window limiter shared by every instance pointing
// at the same Redis.
type RedisLimiter struct {
	redis  redis.Cmdable
	cfg    Config
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter. Keys are stored as
// prefix:key.
func NewRedisLimiter(client redis.Cmdable, cfg Config, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{
		redis:  client,
		cfg:    cfg,
		prefix: prefix,
	}
}

// Allow increments the key's counter. The expiry is only set when the key
// has none, so the window is fixed from the first request rather than
// sliding with every hit.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return failOpen(l.cfg, err)
	}

	resetAfter := ttl.Val()
	if resetAfter < 0 {
		if err := l.redis.PExpire(ctx, redisKey, l.cfg.Window).Err(); err != nil {
			return failOpen(l.cfg, err)
		}
		resetAfter = l.cfg.Window
	}

	return newResult(l.cfg, incr.Val(), resetAfter), nil
}

// Reset clears the counter for key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Err()
}
