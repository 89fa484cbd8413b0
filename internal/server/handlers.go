package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/facturai/invoice-engine/constants"
	"github.com/facturai/invoice-engine/internal/common"
	"github.com/facturai/invoice-engine/internal/extract"
	"github.com/facturai/invoice-engine/internal/orchestrator"
)

type errorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Attempts any    `json:"attempts,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleProcess accepts a multipart upload ("file") and an optional
// "provider" field or query forcing a specific backend.
func (s *Server) handleProcess(c *gin.Context) {
	rid := common.RequestIDFromContext(c.Request.Context())
	start := time.Now()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "multipart field 'file' is required", Code: "bad_request"})
		return
	}

	ext := constants.NormalizeExt(filepath.Ext(fh.Filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		c.JSON(http.StatusUnsupportedMediaType, errorBody{
			Error: fmt.Sprintf("unsupported file extension %q", ext),
			Code:  "unsupported_media_type",
		})
		return
	}

	src, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "cannot read upload", Code: "bad_request"})
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "cannot read upload", Code: "bad_request"})
		return
	}

	preferred := c.PostForm("provider")
	if preferred == "" {
		preferred = c.Query("provider")
	}

	doc := extract.Document{
		Bytes:    data,
		Filename: filepath.Base(fh.Filename),
		Format:   constants.MapExtToFormat(ext),
	}

	res, err := s.orch.Process(c.Request.Context(), doc, preferred)
	if err != nil {
		s.writeProcessError(c, rid, err)
		return
	}

	s.logger.Info("http.process.ok",
		"req_id", rid,
		"filename", doc.Filename,
		"provider_used", res.Backend,
		"is_valid", res.Validation.IsValid,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	c.JSON(http.StatusOK, res)
}

func (s *Server) writeProcessError(c *gin.Context, rid string, err error) {
	var all *orchestrator.AllFailedError
	switch {
	case errors.Is(err, orchestrator.ErrUnknownBackend):
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error(), Code: "unknown_backend"})
	case errors.Is(err, orchestrator.ErrNoBackendAvailable):
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: err.Error(), Code: "no_backend_available"})
	case errors.As(err, &all):
		c.JSON(http.StatusBadGateway, errorBody{Error: err.Error(), Code: "all_backends_failed", Attempts: all.Attempts})
	default:
		s.logger.Error("http.process.internal_error", "req_id", rid, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
	}
}

func (s *Server) handleProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"registered":  s.registry.Names(),
		"available":   s.registry.Available(),
		"recommended": s.registry.Recommended(),
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"provider_stats":     s.collector.Snapshot(),
		"recent_extractions": s.collector.Recent(0),
	})
}

func (s *Server) handleMetricsReset(c *gin.Context) {
	s.collector.Clear()
	s.logger.Warn("http.metrics.reset", "req_id", common.RequestIDFromContext(c.Request.Context()))
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMetricsExport(c *gin.Context) {
	data, err := s.exporter.MetricsXLSX(0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody{Error: "export failed", Code: "internal"})
		return
	}
	filename := "invoice-metrics-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
