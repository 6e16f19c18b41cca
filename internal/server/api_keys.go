package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/directory/internal/apikey/domain"
	"github.com/smallbiznis/directory/internal/observability/logger"
	"go.uber.org/zap"
)

type createAPIKeyRequest struct {
	Name      string   `json:"name"`
	Role      string   `json:"role"`
	Scopes    []string `json:"scopes"`
	ExpiresAt string   `json:"expires_at"`
}

func (s *Server) ListAPIKeys(c *gin.Context) {
	keys, err := s.apiKeySvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, keys)
}

func (s *Server) CreateAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	expiresAt, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		AbortWithError(c, newValidationError("expires_at", "invalid_expires_at", "expires_at must be RFC3339 or YYYY-MM-DD"))
		return
	}

	resp, err := s.apiKeySvc.Create(c.Request.Context(), apikeydomain.CreateRequest{
		Name:      req.Name,
		Role:      req.Role,
		Scopes:    req.Scopes,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info("api key created",
		zap.String("key_id", resp.KeyID),
		zap.String("role", resp.Role),
		zap.String("actor", callerSubject(c)),
	)

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	keyID := strings.TrimSpace(c.Param("key_id"))
	if err := s.apiKeySvc.Revoke(c.Request.Context(), keyID); err != nil {
		AbortWithError(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info("api key revoked",
		zap.String("key_id", keyID),
		zap.String("actor", callerSubject(c)),
	)

	c.Status(http.StatusNoContent)
}
