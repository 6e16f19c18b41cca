package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The bucket is stored in thousandths of a token: Lua numbers leave Redis
// truncated to integers, and slow refill rates would otherwise round away.
// Refill uses the Redis server clock so replicas agree on elapsed time.
var tokenBucketScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2]) * 1000
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "milli", "ts")
local milli = tonumber(state[1])
local ts = tonumber(state[2])
if milli == nil then
  milli = capacity
else
  local elapsed = math.max(0, now - ts)
  milli = math.min(capacity, milli + elapsed * rate)
end

local allowed = 0
if milli >= 1000 then
  allowed = 1
  milli = milli - 1000
end

redis.call("HSET", KEYS[1], "milli", milli, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, math.floor(milli), now}
`)

var (
	ErrLimiterNotConfigured = errors.New("rate_limiter_not_configured")
	ErrEmptyKey             = errors.New("rate_limiter_key_empty")
	ErrInvalidLimit         = errors.New("rate_limiter_invalid_limit")
)

// Limit is a refill rate in tokens per second and a bucket capacity.
type Limit struct {
	Rate  float64
	Burst int
}

func (l Limit) valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// idleTTL is how long an untouched bucket lives: twice the time it takes to
// refill from empty, so an expired key is indistinguishable from a full one.
func (l Limit) idleTTL() time.Duration {
	seconds := math.Max(1, math.Ceil(2*float64(l.Burst)/l.Rate))
	return time.Duration(seconds) * time.Second
}

// TokenBucket keeps one bucket per key in a Redis hash.
type TokenBucket struct {
	client redis.Scripter
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client}
}

// Allow takes one token from key's bucket if there is one.
func (t *TokenBucket) Allow(ctx context.Context, key string, limit Limit) (*RateLimitResult, error) {
	switch {
	case t == nil || t.client == nil:
		return &RateLimitResult{}, ErrLimiterNotConfigured
	case key == "":
		return &RateLimitResult{}, ErrEmptyKey
	case !limit.valid():
		return &RateLimitResult{}, ErrInvalidLimit
	}

	// Rate goes in per millisecond: one token per second is one milli-token
	// per millisecond.
	vals, err := tokenBucketScript.Run(ctx, t.client, []string{key},
		limit.Rate, limit.Burst, limit.idleTTL().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return &RateLimitResult{}, err
	}
	if len(vals) != 3 {
		return &RateLimitResult{}, fmt.Errorf("token bucket script returned %d values", len(vals))
	}

	allowed, milli, nowMs := vals[0] == 1, vals[1], vals[2]
	var retryAfter time.Duration
	if !allowed {
		missing := float64(1000-milli) / 1000
		retryAfter = time.Duration(missing / limit.Rate * float64(time.Second))
	}
	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      limit.Burst,
		Remaining:  int(milli / 1000),
		ResetTime:  time.UnixMilli(nowMs).Add(retryAfter),
		RetryAfter: retryAfter,
	}, nil
}
