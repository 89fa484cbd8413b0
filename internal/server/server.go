// Package server exposes the extraction engine over HTTP: document
// processing, backend discovery, and metrics read-outs.
package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/facturai/invoice-engine/internal/common"
	"github.com/facturai/invoice-engine/internal/export"
	"github.com/facturai/invoice-engine/internal/extract"
	"github.com/facturai/invoice-engine/internal/metrics"
	"github.com/facturai/invoice-engine/internal/orchestrator"
)

// maxUploadBytes caps invoice uploads; scanned multi-page PDFs stay
// well under this.
const maxUploadBytes = 25 << 20

type Server struct {
	orch      *orchestrator.Orchestrator
	registry  *extract.Registry
	collector *metrics.Collector
	exporter  *export.Service
	logger    *slog.Logger
}

func New(orch *orchestrator.Orchestrator, registry *extract.Registry, collector *metrics.Collector, exporter *export.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		orch:      orch,
		registry:  registry,
		collector: collector,
		exporter:  exporter,
		logger:    logger,
	}
}

// Router builds the gin engine. gatherer may be nil to omit the
// Prometheus endpoint.
func (s *Server) Router(gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestID())

	r.GET("/healthz", s.handleHealth)
	r.POST("/invoices/process", s.handleProcess)
	r.GET("/providers", s.handleProviders)
	r.GET("/metrics", s.handleMetrics)
	r.DELETE("/metrics", s.handleMetricsReset)
	r.GET("/metrics/export", s.handleMetricsExport)
	if gatherer != nil {
		r.GET("/metrics/prometheus", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// requestID tags every request with an id carried in the context and
// echoed in the response headers.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.New().String()
		}
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), rid))
		c.Header("X-Request-ID", rid)
		c.Next()
	}
}
