package server

import (
	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/directory/internal/apikey/domain"
)

// requireCapability guards a route whose capability does not depend on the
// request body.
func (s *Server) requireCapability(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.checkCapability(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) checkCapability(c *gin.Context, object string, action string) error {
	principal, ok := principalFromContext(c.Request.Context())
	if !ok || principal.KeyID == "" {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(c.Request.Context(), subjectOf(principal), principal.Role, object, action)
}

// callerSubject is the audit name of the authenticated caller, empty for
// anonymous requests.
func callerSubject(c *gin.Context) string {
	principal, ok := principalFromContext(c.Request.Context())
	if !ok {
		return ""
	}
	return subjectOf(principal)
}

func subjectOf(p *apikeydomain.Principal) string {
	return "api_key:" + p.KeyID
}
