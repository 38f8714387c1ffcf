package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"etl-backend/internal/etl"
	"etl-backend/internal/schemas"
	"etl-backend/internal/services/health"
	"etl-backend/internal/shared/config"
	"etl-backend/internal/shared/metrics"
	"etl-backend/internal/shared/server/middleware"
	"etl-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers the router mounts.
type RouterDeps struct {
	Config        config.Config
	ETLHandler    *etl.Handler
	SchemaHandler *schemas.Handler
	Health        *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.OK(c, gin.H{"ok": true})
			return
		}
		st := deps.Health.Status()
		status := http.StatusOK
		if !st.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, st)
	})
	r.GET("/metrics", metrics.Handler())

	if deps.ETLHandler != nil {
		deps.ETLHandler.RegisterRoutes(r)
	}
	if deps.SchemaHandler != nil {
		deps.SchemaHandler.RegisterRoutes(r)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":5001"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
