package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/faceclient"
	"github.com/campusattend/attendance/internal/identity"
)

func ok(c *gin.Context, status int, message string, data any) {
	body := gin.H{"success": true, "data": data}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

// statusFor maps a domain error to its HTTP status and the message safe to show the caller.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, faceclient.ErrImageRequired):
		return http.StatusBadRequest, "Image is required"
	case errors.Is(err, attendance.ErrNoMatch):
		return http.StatusBadRequest, "No face recognized"
	case errors.Is(err, faceclient.ErrRecognitionFailed):
		return http.StatusBadRequest, withReason("Face recognition failed", err)
	case errors.Is(err, faceclient.ErrEnrollmentFailed):
		return http.StatusBadRequest, withReason("Face registration failed", err)
	case errors.Is(err, faceclient.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "Face recognition service is unavailable. Please try again later."
	case errors.Is(err, attendance.ErrUnknownIdentity):
		return http.StatusNotFound, "Student not found in database"
	case errors.Is(err, attendance.ErrInvalidRange):
		return http.StatusBadRequest, "startDate must not be after endDate"
	case errors.Is(err, attendance.ErrActorRequired):
		return http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, identity.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, identity.ErrDuplicateKey):
		return http.StatusBadRequest, "An account with this email or id already exists"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, identity.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func withReason(msg string, err error) string {
	if r := faceclient.Reason(err); r != "" {
		return msg + ": " + r
	}
	return msg
}

// abortErr writes err through statusFor and logs anything that is not the caller's fault.
func (h *Handler) abortErr(c *gin.Context, op string, err error) {
	status, msg := statusFor(err)
	if status >= 500 {
		h.Logger.Error(op+" failed", "path", c.FullPath(), "error", err)
	}
	_ = c.Error(err)
	fail(c, status, msg)
}
