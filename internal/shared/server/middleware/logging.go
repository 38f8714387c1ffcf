package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"etl-backend/internal/shared/telemetry"
)

// Context keys handlers may set to enrich the request log line.
const (
	RunIDKey      = "runId"
	UploadTypeKey = "uploadType"
	OutcomeKey    = "outcome"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		telemetry.Info("request.complete", map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"run_id":      c.GetString(RunIDKey),
			"upload_type": c.GetString(UploadTypeKey),
			"outcome":     c.GetString(OutcomeKey),
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		})
	}
}
