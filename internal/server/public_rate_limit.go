package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/directory/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/directory/internal/observability/metrics"
	"github.com/smallbiznis/directory/internal/ratelimit"
	"go.uber.org/zap"
)

const rateLimitReasonClientRate = "client-rate"

// PublicRateLimit throttles the public endpoints per client IP and route.
// A Redis failure answers 503 rather than letting traffic through unmetered.
func (s *Server) PublicRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.publicLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		result, err := s.publicLimiter.Allow(ctx, endpoint, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("public rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		setRateLimitHeaders(c, result)
		if !result.Allowed {
			denyPublicRateLimit(c, endpoint, rateLimitReasonClientRate, result, s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result *ratelimit.RateLimitResult) {
	if result == nil || result.Limit <= 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
}

func denyPublicRateLimit(c *gin.Context, endpoint, reason string, result *ratelimit.RateLimitResult, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("public rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	recordRateLimitDenied(ctx, endpoint, reason, metrics)

	c.Header("Retry-After", retryAfterSeconds(result))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func retryAfterSeconds(result *ratelimit.RateLimitResult) string {
	if result == nil || result.RetryAfter <= 0 {
		return "1"
	}
	seconds := int(math.Ceil(result.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
