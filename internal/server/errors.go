package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/directory/internal/apikey/domain"
	"github.com/smallbiznis/directory/internal/authorization"
	inboxdomain "github.com/smallbiznis/directory/internal/inbox/domain"
	scarcitydomain "github.com/smallbiznis/directory/internal/scarcity/domain"
	waitlistdomain "github.com/smallbiznis/directory/internal/waitlist/domain"
	"gorm.io/gorm"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors carries field-level problems found by a handler before
// any service is called.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// errorClass is one row of the response mapping. The first class with a
// matching sentinel wins.
type errorClass struct {
	status    int
	kind      string
	message   string
	sentinels []error
}

var errorClasses = []errorClass{
	{http.StatusUnauthorized, "unauthorized", "unauthorized", []error{
		ErrUnauthorized, apikeydomain.ErrUnauthorized,
	}},
	{http.StatusForbidden, "forbidden", "forbidden", []error{
		ErrForbidden, authorization.ErrForbidden, authorization.ErrInvalidActor, authorization.ErrInvalidRole,
	}},
	{http.StatusConflict, "conflict", "business is already waiting for this slot", []error{
		waitlistdomain.ErrAlreadyWaitlisted,
	}},
	{http.StatusConflict, "conflict", "item is not in a state that allows this action", []error{
		inboxdomain.ErrInvalidTransition,
	}},
	{http.StatusConflict, "conflict", "conflict", []error{ErrConflict}},
	{http.StatusNotFound, "not_found", "not found", []error{
		ErrNotFound, inboxdomain.ErrNotFound, apikeydomain.ErrNotFound, gorm.ErrRecordNotFound,
	}},
	{http.StatusTooManyRequests, "rate_limited", "too many requests", []error{ErrRateLimited}},
	{http.StatusServiceUnavailable, "service_unavailable", "service unavailable", []error{ErrServiceUnavailable}},
}

// invalidValue lists service errors that reject a single input value. Their
// code is "invalid_<field>".
var invalidValue = []error{
	ErrInvalidRequest,
	scarcitydomain.ErrInvalidCategory,
	scarcitydomain.ErrInvalidPlan,
	waitlistdomain.ErrInvalidBusiness,
	waitlistdomain.ErrInvalidCategory,
	waitlistdomain.ErrInvalidPlan,
	waitlistdomain.ErrInvalidStatus,
	waitlistdomain.ErrInvalidPageToken,
	inboxdomain.ErrInvalidKind,
	inboxdomain.ErrInvalidID,
	apikeydomain.ErrInvalidName,
	apikeydomain.ErrInvalidRole,
	apikeydomain.ErrInvalidKeyID,
	authorization.ErrInvalidObject,
	authorization.ErrInvalidAction,
}

var internalError = errorPayload{Type: "internal_error", Message: "internal server error"}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		status, payload := mapError(last.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalError
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, validationPayload("validation error", vErr.Errors...)
	}
	if errors.Is(err, inboxdomain.ErrInvalidAction) {
		return http.StatusBadRequest, validationPayload("Invalid action",
			ValidationError{Field: "action", Code: "invalid_action", Message: "Invalid action"})
	}
	for _, sentinel := range invalidValue {
		if errors.Is(err, sentinel) {
			code := sentinel.Error()
			return http.StatusBadRequest, validationPayload("validation error", ValidationError{
				Field:   strings.TrimPrefix(code, "invalid_"),
				Code:    code,
				Message: invalidMessage(code),
			})
		}
	}

	for _, class := range errorClasses {
		for _, sentinel := range class.sentinels {
			if errors.Is(err, sentinel) {
				return class.status, errorPayload{Type: class.kind, Message: class.message}
			}
		}
	}
	return http.StatusInternalServerError, internalError
}

func validationPayload(message string, errs ...ValidationError) errorPayload {
	return errorPayload{Type: "validation_error", Message: message, Errors: errs}
}

func invalidMessage(code string) string {
	if code == ErrInvalidRequest.Error() {
		return "invalid request"
	}
	return "invalid value"
}

// classifyErrorForLog reports the response type and code an error maps to
// without writing anything.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	switch {
	case len(payload.Errors) > 0:
		return payload.Type, payload.Errors[0].Code
	case payload.Type == internalError.Type:
		return payload.Type, payload.Type
	default:
		return payload.Type, err.Error()
	}
}
