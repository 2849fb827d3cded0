package handler

import (
	"net/http"

	"backoffice/internal/apperror"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

// statusFor maps an operation failure to its HTTP status.
func statusFor(err error) int {
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// respondError writes the error envelope and attaches err to the context so the
// request logger records it.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		// Storage details stay in the logs.
		msg = "service temporarily unavailable, please retry"
	}
	c.JSON(status, response.KindError(status, string(apperror.KindOf(err)), apperror.FieldOf(err), msg))
}

func respondBindError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, response.KindError(http.StatusBadRequest, string(apperror.KindValidation), "", "Invalid request payload: "+err.Error()))
}
