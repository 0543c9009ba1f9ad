// Package handlers implements the HTTP endpoints of the support API: message
// routing, ticket lifecycle, feedback and operational stats.
//
// Every failure path returns the same envelope so webhook bridges and the
// staff dashboard can branch on a stable `code` field:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "ticket_closed",
//	  "message": "ticket is closed"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eventdesk/go-support-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all endpoints. RequestID is
// echoed from X-Request-ID for log correlation; Code is machine-readable (see
// errors.go), Message is safe to show to staff.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"ticket_closed"`
	Message   string `json:"message" example:"ticket is closed"`
}

// fail aborts with the standard envelope. 5xx responses also get an error
// log line carrying the request context.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail exposes fail for the router's NoRoute and NoMethod fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
