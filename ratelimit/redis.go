package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces limiter keys.
const DefaultRedisPrefix = "rl:"

// slidingWindowScript prunes, counts and conditionally records one event.
// It returns {allowed, count, oldestMillis}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
local allowed = 0
if count < limit then
  redis.call("ZADD", key, now, ARGV[4])
  redis.call("PEXPIRE", key, window)
  count = count + 1
  allowed = 1
end
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
local oldestScore = now
if oldest[2] then
  oldestScore = tonumber(oldest[2])
end
return {allowed, count, oldestScore}
`)

// RedisConfig configures a Redis-backed sliding window.
type RedisConfig struct {
	Config

	// Prefix is prepended to every key.
	// Default: "rl:"
	Prefix string

	// Timeout bounds each script call.
	// Default: 2 seconds
	Timeout time.Duration
}

// RedisSlidingWindow is a sliding-window limiter shared through Redis.
type RedisSlidingWindow struct {
	client redis.Scripter
	config RedisConfig

	// Fallback serves checks while Redis fails. Nil surfaces the error.
	Fallback Limiter

	// OnError observes Redis failures.
	OnError func(key string, err error)
}

// NewRedisSlidingWindow creates a Redis-backed limiter with an in-memory
// fallback using the same window parameters.
func NewRedisSlidingWindow(client redis.Scripter, config RedisConfig) *RedisSlidingWindow {
	config.Config = config.Config.withDefaults()
	if config.Prefix == "" {
		config.Prefix = DefaultRedisPrefix
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Second
	}
	return &RedisSlidingWindow{
		client:   client,
		config:   config,
		Fallback: NewSlidingWindow(config.Config),
	}
}

// Allow runs the sliding-window script for key.
func (l *RedisSlidingWindow) Allow(ctx context.Context, key string) (Decision, error) {
	if l.client == nil {
		return l.fallback(ctx, key, fmt.Errorf("ratelimit: redis client not configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	now := l.config.Now()
	nowMs := now.UnixMilli()
	windowMs := l.config.Window.Milliseconds()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.config.Prefix + key},
		nowMs, windowMs, l.config.Max, member,
	).Int64Slice()
	if err != nil {
		return l.fallback(ctx, key, fmt.Errorf("ratelimit: redis: %w", err))
	}
	if len(res) < 3 {
		return l.fallback(ctx, key, fmt.Errorf("ratelimit: redis: unexpected script result %v", res))
	}

	allowed, count, oldestMs := res[0] == 1, int(res[1]), res[2]
	resetAt := time.UnixMilli(oldestMs + windowMs)
	d := Decision{
		Allowed: allowed,
		Limit:   l.config.Max,
		ResetAt: resetAt,
	}
	if allowed {
		d.Remaining = l.config.Max - count
	} else {
		d.RetryAfter = resetAt.Sub(time.UnixMilli(nowMs))
		if d.RetryAfter < 0 {
			d.RetryAfter = 0
		}
	}
	return d, nil
}

func (l *RedisSlidingWindow) fallback(ctx context.Context, key string, err error) (Decision, error) {
	if l.OnError != nil {
		l.OnError(key, err)
	}
	if l.Fallback == nil {
		return Decision{}, err
	}
	return l.Fallback.Allow(context.WithoutCancel(ctx), key)
}

// Ensure RedisSlidingWindow implements Limiter
var _ Limiter = (*RedisSlidingWindow)(nil)
