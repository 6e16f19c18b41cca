package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/directory/internal/config"
	"go.uber.org/zap"
)

const keyPublicEndpoint = "directory:ratelimit:%s:%s"

// PublicLimiter throttles the unauthenticated scarcity and waitlist
// endpoints per client and route.
type PublicLimiter struct {
	bucket *TokenBucket
	limit  Limit
}

// NewPublicLimiter returns nil when limiting is disabled or Redis is not
// configured; a nil limiter allows everything.
func NewPublicLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*PublicLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	limit := Limit{Rate: limitCfg.Rate, Burst: limitCfg.Burst}
	if !limit.valid() {
		return nil, fmt.Errorf("%w: rate=%v burst=%d", ErrInvalidLimit, limit.Rate, limit.Burst)
	}
	if client == nil {
		if log != nil {
			log.Warn("rate limiting enabled without REDIS_ADDR; public endpoints are unthrottled")
		}
		return nil, nil
	}
	return &PublicLimiter{
		bucket: NewTokenBucket(client),
		limit:  limit,
	}, nil
}

func (l *PublicLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *PublicLimiter) Allow(ctx context.Context, endpoint, clientID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		clientID = "anonymous"
	}
	key := fmt.Sprintf(keyPublicEndpoint, strings.TrimSpace(endpoint), clientID)
	return l.bucket.Allow(ctx, key, l.limit)
}
