package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"etl-backend/internal/shared/telemetry"
)

// Envelope is the failure body of /run-etl. Business failures are reported
// with Success=false and a 200 status.
type Envelope struct {
	Success bool    `json:"success"`
	Error   string  `json:"error"`
	Details *string `json:"details,omitempty"`
}

// Failure writes a success:false envelope. details is omitted when nil.
func Failure(c *gin.Context, message string, details *string) {
	telemetry.Warn("http.failure", map[string]any{
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	})
	c.AbortWithStatusJSON(http.StatusOK, Envelope{
		Success: false,
		Error:   message,
		Details: details,
	})
}
