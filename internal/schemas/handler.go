package schemas

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"etl-backend/internal/shared/server/respond"
	"etl-backend/internal/shared/telemetry"
)

type Handler struct {
	Store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{Store: store}
}

func (h *Handler) RegisterRoutes(rg gin.IRoutes) {
	rg.GET("/schema/:sourceid", h.get)
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("sourceid")
	doc, err := h.Store.Lookup(c.Request.Context(), id)
	switch {
	case err == nil:
		c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
	case errors.Is(err, ErrNotFound):
		telemetry.Info("schemas.lookup.miss", map[string]any{"source_id": id})
		c.AbortWithStatusJSON(http.StatusNotFound, respond.ErrorResponse{Error: "Schema not found"})
	case errors.Is(err, ErrInvalid):
		respond.Error(c, http.StatusInternalServerError, "invalid_schema", "Schema file is not valid JSON")
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "Failed to read schema")
	}
}
