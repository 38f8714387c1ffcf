package etl

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"etl-backend/internal/results"
	"etl-backend/internal/shared/server/middleware"
	"etl-backend/internal/shared/server/respond"
	"etl-backend/internal/uploads"
)

const (
	xlsxFileName    = "structured_table.xlsx"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Handler struct {
	Svc            *Service
	MaxUploadBytes int64
}

func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

func (h *Handler) RegisterRoutes(rg gin.IRoutes) {
	rg.POST("/run-etl", h.runETL)
	rg.GET("/download", h.download)
	rg.GET("/download/xlsx", h.downloadXLSX)
}

func (h *Handler) runETL(c *gin.Context) {
	if h.Svc == nil {
		respond.Failure(c, "service unavailable", nil)
		return
	}
	if h.MaxUploadBytes > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}

	var req Request
	fh, err := uploads.FromRequest(c.Request)
	if err != nil {
		h.fail(c, Outcome{}, err)
		return
	}
	if fh != nil {
		f, err := fh.Open()
		if err != nil {
			h.fail(c, Outcome{}, err)
			return
		}
		defer f.Close()
		req.Input = &uploads.Input{FileName: fh.Filename, Body: f}
	}

	out, err := h.Svc.Run(c.Request.Context(), req)
	c.Set(middleware.RunIDKey, out.RunID)
	if out.Upload != nil {
		c.Set(middleware.UploadTypeKey, out.Upload.Type)
	}
	if err != nil {
		h.fail(c, out, err)
		return
	}
	c.Set(middleware.OutcomeKey, "success")
	respond.OK(c, Body(out, nil))
}

func (h *Handler) fail(c *gin.Context, out Outcome, err error) {
	c.Set(middleware.OutcomeKey, "failure")
	msg, details := Describe(err, out)
	respond.Failure(c, msg, details)
}

// download streams the current output. A missing file is left to the
// file server, which answers 404.
func (h *Handler) download(c *gin.Context) {
	c.FileAttachment(h.Svc.OutputPath, ArchiveFileName)
}

func (h *Handler) downloadXLSX(c *gin.Context) {
	table, err := results.LoadTable(h.Svc.OutputPath)
	switch {
	case errors.Is(err, results.ErrNoOutput):
		respond.Error(c, http.StatusNotFound, "not_found", "No output available")
		return
	case err != nil:
		respond.Error(c, http.StatusInternalServerError, "invalid_output", err.Error())
		return
	}

	var buf bytes.Buffer
	if err := results.WriteXLSX(&buf, table); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "Failed to render workbook")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+xlsxFileName+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
