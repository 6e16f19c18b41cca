package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	scarcitydomain "github.com/smallbiznis/directory/internal/scarcity/domain"
)

func (s *Server) GetScarcity(c *gin.Context) {
	categoryID := queryValue(c, "categoryId", "category")
	plan := strings.ToLower(queryValue(c, "plan"))

	var errs []ValidationError
	if categoryID == "" {
		errs = append(errs, ValidationError{Field: "categoryId", Code: "required", Message: "categoryId is required"})
	}
	switch plan {
	case "":
		errs = append(errs, ValidationError{Field: "plan", Code: "required", Message: "plan is required"})
	case "featured", "sponsor":
	default:
		errs = append(errs, ValidationError{Field: "plan", Code: "invalid_plan", Message: "plan must be featured or sponsor"})
	}
	if len(errs) > 0 {
		AbortWithError(c, &ValidationErrors{Errors: errs})
		return
	}
	c.Set("category_id", categoryID)

	decision, err := s.scarcitySvc.CanUpgradeToPlan(c.Request.Context(), scarcitydomain.UpgradeRequest{
		CategoryID: categoryID,
		Plan:       plan,
		Zone:       queryValue(c, "zone"),
		Specialty:  queryValue(c, "specialty"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

func (s *Server) GetScarcityMetrics(c *gin.Context) {
	categoryID := queryValue(c, "categoryId", "category")
	if categoryID == "" {
		AbortWithError(c, newValidationError("categoryId", "required", "categoryId is required"))
		return
	}
	c.Set("category_id", categoryID)

	snapshot, err := s.scarcitySvc.GetScarcityMetrics(c.Request.Context(), categoryID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}
