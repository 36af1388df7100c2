package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cpo-backoffice-api/internal/models"
	"github.com/noah-isme/cpo-backoffice-api/internal/service"
	"github.com/noah-isme/cpo-backoffice-api/pkg/response"
)

type systemService interface {
	DBStats(ctx context.Context) (*models.DBStats, error)
	Probe(ctx context.Context) ([]service.DependencyStatus, bool)
}

// SystemHandler exposes observability endpoints.
type SystemHandler struct {
	system  systemService
	metrics *service.MetricsService
}

// NewSystemHandler constructs a system handler.
func NewSystemHandler(system systemService, metrics *service.MetricsService) *SystemHandler {
	return &SystemHandler{system: system, metrics: metrics}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *SystemHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health godoc
// @Summary Liveness probe
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready godoc
// @Summary Readiness probe
// @Description Checks the database and optional dependencies
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /ready [get]
func (h *SystemHandler) Ready(c *gin.Context) {
	checks, healthy := h.system.Probe(c.Request.Context())
	status, label := http.StatusOK, "ready"
	if !healthy {
		status, label = http.StatusServiceUnavailable, "degraded"
	}
	c.JSON(status, gin.H{"status": label, "checks": checks})
}

// DBStats godoc
// @Summary Row counts per table
// @Tags System
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /sistema/db-stats [get]
func (h *SystemHandler) DBStats(c *gin.Context) {
	stats, err := h.system.DBStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}
