package handlers

import (
	"net/http"

	"example.com/storefront/services/orders/internal/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsHandler exposes runtime metrics and component health
type MetricsHandler struct {
	metrics *metrics.Metrics
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(m *metrics.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: m}
}

// HandleMetrics returns the full metrics snapshot
func (h *MetricsHandler) HandleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.GetAllMetrics())
}

// HandleHealth reports overall service health. Healthy when every
// registered component check passes.
func (h *MetricsHandler) HandleHealth(c *gin.Context) {
	checks := h.metrics.GetHealthChecks()

	healthy := true
	for _, ok := range checks {
		if !ok {
			healthy = false
			break
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":         state,
		"checks":         checks,
		"uptime_seconds": h.metrics.GetUptimeSeconds(),
	})
}

// RegisterRoutes registers the handler's routes
func (h *MetricsHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/metrics", h.HandleMetrics)
	router.GET("/health", h.HandleHealth)
}
