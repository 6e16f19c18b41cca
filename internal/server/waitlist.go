package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	waitlistdomain "github.com/smallbiznis/directory/internal/waitlist/domain"
)

func (s *Server) JoinWaitlist(c *gin.Context) {
	var req waitlistdomain.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set("category_id", req.CategoryID)

	position, err := s.waitlistSvc.Join(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, position)
}

func (s *Server) ListWaitlist(c *gin.Context) {
	pageSize, err := queryPositiveInt(c, "page_size")
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
		return
	}

	req := waitlistdomain.ListRequest{
		CategoryID: queryValue(c, "categoryId", "category"),
		Plan:       queryValue(c, "plan"),
		Status:     queryValue(c, "status"),
		PageToken:  queryValue(c, "page_token"),
		PageSize:   pageSize,
	}

	resp, err := s.waitlistSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
