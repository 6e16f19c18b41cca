package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", 500, ""))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/admin/inbox", 500, ""))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/api/waitlist", 429, "rate_limited"))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/api/scarcity", 400, "validation_error"))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/admin/inbox-action", 400, "validation_error"))
}

func TestGinMiddlewareLogsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "conflict", "already_waitlisted" },
	}))
	r.POST("/api/waitlist", func(c *gin.Context) {
		c.Set("category_id", "escuelas")
		_ = c.Error(errors.New("already_waitlisted"))
		c.Status(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/waitlist", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/api/waitlist", fields["route"])
	assert.Equal(t, int64(409), fields["status"])
	assert.Equal(t, "escuelas", fields["category_id"])
	assert.Equal(t, "already_waitlisted", fields["error_code"])
	assert.Equal(t, "req-1", fields["request_id"])
}
