package handlers

import (
	"net/http"

	"github.com/AtRiskMedia/cartrecovery-go/internal/application/services"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
	"github.com/gin-gonic/gin"
)

// SnapshotHandlers serves the cached dashboard numbers.
type SnapshotHandlers struct {
	snapshotService *services.SnapshotService
	defaultRange    int
	logger          *logging.ChanneledLogger
}

// NewSnapshotHandlers creates snapshot handlers with injected dependencies
func NewSnapshotHandlers(snapshotService *services.SnapshotService, defaultRange int, logger *logging.ChanneledLogger) *SnapshotHandlers {
	return &SnapshotHandlers{
		snapshotService: snapshotService,
		defaultRange:    defaultRange,
		logger:          logger,
	}
}

// GetInsights handles GET /recovery/insights?rangeDays&force.
func (h *SnapshotHandlers) GetInsights(c *gin.Context) {
	rangeDays := queryInt(c, "rangeDays", h.defaultRange)
	insights, err := h.snapshotService.Insights(c.Request.Context(), rangeDays, queryBool(c, "force"))
	if err != nil {
		respondError(c, h.logger, logging.ChannelCache, err)
		return
	}
	c.JSON(http.StatusOK, insights)
}

// GetOrderMetrics handles GET /orders/metrics?rangeDays&status&force.
func (h *SnapshotHandlers) GetOrderMetrics(c *gin.Context) {
	q := recoveryapi.OrderMetricsQuery{
		RangeDays: queryInt(c, "rangeDays", h.defaultRange),
		Status:    c.Query("status"),
	}
	metrics, err := h.snapshotService.OrderMetrics(c.Request.Context(), q, queryBool(c, "force"))
	if err != nil {
		respondError(c, h.logger, logging.ChannelCache, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}
