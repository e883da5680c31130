package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/application/container"
	"github.com/gin-gonic/gin"
)

// HealthHandlers reports liveness together with cache and list state.
type HealthHandlers struct {
	container *container.Container
	started   time.Time
}

// NewHealthHandlers creates health handlers with injected dependencies
func NewHealthHandlers(container *container.Container) *HealthHandlers {
	return &HealthHandlers{container: container, started: time.Now()}
}

// Health handles GET /health. It always answers 200 while the process is
// up; a failing database is reported, not fatal.
func (h *HealthHandlers) Health(c *gin.Context) {
	ct := h.container
	body := gin.H{
		"status":      "ok",
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"snapshots":   ct.Snapshots.Stats(),
		"journeys":    ct.Journeys.Stats(),
		"invalidator": ct.Invalidator.Stats(),
		"lastSweep":   ct.Sweeper.LastReport(),
		"sseClients":  ct.Broadcaster.ClientCount(),
		"busDropped":  ct.Bus.Dropped(),
	}
	if ct.Realtime != nil {
		body["realtime"] = ct.Realtime.Status()
	}

	if ct.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := ct.DB.HealthCheck(ctx); err != nil {
			body["database"] = gin.H{"driver": ct.DB.Driver, "healthy": false, "error": err.Error()}
		} else {
			body["database"] = gin.H{"driver": ct.DB.Driver, "healthy": true}
		}
	}

	c.JSON(http.StatusOK, body)
}
