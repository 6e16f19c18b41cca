package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/directory/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps the last handler error to (error_type, error_code).
	ErrorClassifier func(err error) (string, string)
}

// quietRoutes are scraped or polled constantly and only logged at debug.
var quietRoutes = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// GinMiddleware assigns a request id and writes one http_request entry per
// request once the handlers are done.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()

		fields := make([]zap.Field, 0, 12)
		fields = append(fields,
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		)
		if categoryID := c.GetString("category_id"); categoryID != "" {
			fields = append(fields, zap.String("category_id", categoryID))
		}

		var errorType string
		if last := c.Errors.Last(); last != nil && cfg.ErrorClassifier != nil {
			var errorCode string
			errorType, errorCode = cfg.ErrorClassifier(last.Err)
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		if ce := FromContext(c.Request.Context()).Check(requestLevel(route, status, errorType), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

// requestLevel keeps public client mistakes (bad scarcity queries, throttled
// callers) out of the info stream.
func requestLevel(route string, status int, errorType string) zapcore.Level {
	if _, quiet := quietRoutes[route]; quiet {
		return zapcore.DebugLevel
	}
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case strings.HasPrefix(route, "/api/") && status == http.StatusTooManyRequests:
		return zapcore.DebugLevel
	case strings.HasPrefix(route, "/api/scarcity") && errorType == "validation_error":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func requestIDFor(c *gin.Context) string {
	// Header lookups are canonicalized, so X-Request-ID matches too.
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header(requestIDHeader, requestID)
	return requestID
}
