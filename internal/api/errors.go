package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"task-audit/internal/service"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func abortWithError(c *gin.Context, status int, reason, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: message, Reason: reason})
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status, reason := classify(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		abortWithError(c, status, reason, "internal server error")
		return
	}
	abortWithError(c, status, reason, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrMissingRequiredField):
		return http.StatusUnprocessableEntity, "missing_required_field"
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, service.ErrNoAuditorAvailable):
		return http.StatusConflict, "no_auditor_available"
	case errors.Is(err, service.ErrTaskNotFound), errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, service.ErrDuplicateUser):
		return http.StatusConflict, "duplicate_user"
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrUserInactive):
		return http.StatusUnauthorized, "unauthorized"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
