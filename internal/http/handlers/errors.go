// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Every
// error response carries one of these codes together with the HTTP status
// and a human-readable message:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "forbidden",
//	  "message": "only the reviewer can delete this rating"
//	}
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/summerjobs-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeWriteFailed      = "write_failed"
	ErrCodeSMSFailed        = "sms_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// failErr maps a service error onto status, code, and message.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "sign in required")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, detail(err, services.ErrForbidden))
	case errors.Is(err, services.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, detail(err, services.ErrNotFound))
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.Detail(err))
	case errors.Is(err, services.ErrSMSDisabled):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrSMSDelivery):
		fail(c, http.StatusBadGateway, ErrCodeSMSFailed, services.ErrSMSDelivery.Error())
	case errors.Is(err, services.ErrStoreRead):
		c.Header("Retry-After", "1")
		fail(c, http.StatusServiceUnavailable, ErrCodeStoreUnavailable, "storage temporarily unavailable")
	case errors.Is(err, services.ErrStoreWrite):
		fail(c, http.StatusInternalServerError, ErrCodeWriteFailed, "could not save changes")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
	if c.Writer.Status() >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
}

// detail strips the sentinel prefix from a wrapped error message, falling
// back to the sentinel text alone.
func detail(err, sentinel error) string {
	msg, ok := strings.CutPrefix(err.Error(), sentinel.Error()+": ")
	if !ok {
		return sentinel.Error()
	}
	return msg
}
