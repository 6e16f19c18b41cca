package server

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/directory/internal/apikey/domain"
	obscontext "github.com/smallbiznis/directory/internal/observability/context"
	"github.com/smallbiznis/directory/internal/observability/logger"
	"go.uber.org/zap"
)

type principalContextKey struct{}

// APIKeyRequired authenticates operator requests with a bearer API key. The
// key's role is what the authorization middleware checks.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.apiKeySvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			if !errors.Is(err, apikeydomain.ErrUnauthorized) {
				logger.FromContext(c.Request.Context()).Warn("api key lookup failed", zap.Error(err))
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := context.WithValue(c.Request.Context(), principalContextKey{}, principal)
		ctx = obscontext.WithActor(ctx, obscontext.ActorAPIKey, principal.KeyID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func principalFromContext(ctx context.Context) (*apikeydomain.Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	principal, ok := ctx.Value(principalContextKey{}).(*apikeydomain.Principal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}
