package redisad

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"rental_api/internal/adapters/observability"
)

// tokenBucket refills whole tokens per elapsed interval and consumes one.
// Returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
  tokens = capacity
  last_refill = now_ms
end

local elapsed = math.max(0, now_ms - last_refill)
local intervals = math.floor(elapsed / interval_ms)
if intervals > 0 then
  tokens = math.min(capacity, tokens + intervals)
  last_refill = last_refill + (intervals * interval_ms)
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)
return { allowed, tokens, retry_after_ms }
`)

type Config struct {
	RPS    float64
	Burst  int
	TTL    time.Duration
	Prefix string
}

// Limiter is a token bucket shared by every API replica through Redis.
type Limiter struct {
	c   *redis.Client
	cfg Config
	now func() time.Time
}

func New(addr, pass string, db int, cfg Config) *Limiter {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}), cfg)
}

func NewWithClient(c *redis.Client, cfg Config) *Limiter {
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	if min := 5 * interval(cfg.RPS); cfg.TTL < min {
		cfg.TTL = min
	}
	return &Limiter{c: c, cfg: cfg, now: time.Now}
}

func interval(rps float64) time.Duration {
	d := time.Duration(float64(time.Second) / rps)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func (l *Limiter) Ping(ctx context.Context) error { return l.c.Ping(ctx).Err() }

func (l *Limiter) Close() error { return l.c.Close() }

// Allow consumes one token for key. On a Redis error the caller decides
// whether to fail open.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	ttl := int64(l.cfg.TTL / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	vals, err := tokenBucket.Run(ctx, l.c, []string{l.cfg.Prefix + ":" + key},
		l.now().UnixMilli(),
		l.cfg.Burst,
		interval(l.cfg.RPS).Milliseconds(),
		ttl,
	).Result()
	if err != nil {
		observability.ObserveRateLimit("redis", "error")
		return false, 0, err
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		observability.ObserveRateLimit("redis", "error")
		return false, 0, fmt.Errorf("unexpected limiter reply %#v", vals)
	}
	if asInt64(arr[0]) != 1 {
		observability.ObserveRateLimit("redis", "deny")
		return false, time.Duration(asInt64(arr[2])) * time.Millisecond, nil
	}
	observability.ObserveRateLimit("redis", "allow")
	return true, 0, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}
