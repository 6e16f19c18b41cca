package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/directory/internal/authorization"
	inboxdomain "github.com/smallbiznis/directory/internal/inbox/domain"
)

const inboxReportFilename = "inbox-%s.pdf"

func (s *Server) GetInbox(c *gin.Context) {
	inbox, err := s.inboxSvc.BuildInbox(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, inbox)
}

func (s *Server) ExportInboxPDF(c *gin.Context) {
	ctx := c.Request.Context()
	inbox, err := s.inboxSvc.BuildInbox(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.reports == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	report, err := s.reports.GenerateInboxReport(ctx, inbox)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if report == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, report); err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf(inboxReportFilename, inbox.GeneratedAt.UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// ApplyInboxAction runs an operator action on an inbox item. The required
// capability depends on the action and item type, so authorization happens
// here rather than in the route middleware.
func (s *Server) ApplyInboxAction(c *gin.Context) {
	var req inboxdomain.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	action := strings.TrimSpace(req.Action)
	if _, ok := inboxdomain.ParseAction(action); !ok {
		AbortWithError(c, inboxdomain.ErrInvalidAction)
		return
	}
	object, capability, ok := authorization.InboxCapability(req.Kind, action)
	if !ok {
		AbortWithError(c, inboxdomain.ErrInvalidAction)
		return
	}
	if err := s.checkCapability(c, object, capability); err != nil {
		AbortWithError(c, err)
		return
	}

	req.Actor = callerSubject(c)
	req.Action = action

	if err := s.inboxSvc.ApplyAction(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
