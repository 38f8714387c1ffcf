package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"etl-backend/internal/shared/server/respond"
	"etl-backend/internal/shared/telemetry"
)

// Recovery recovers from panics and answers with the success:false envelope
// so a failing request never takes the process down.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				telemetry.Error("panic", map[string]any{
					"request_id": RequestIDFromContext(c),
					"error":      fmt.Sprint(rec),
					"stack":      string(debug.Stack()),
					"path":       c.Request.URL.Path,
					"method":     c.Request.Method,
				})
				if c.Writer.Written() {
					c.Abort()
					return
				}
				respond.Failure(c, fmt.Sprintf("internal error: %v", rec), nil)
			}
		}()
		c.Next()
	}
}
