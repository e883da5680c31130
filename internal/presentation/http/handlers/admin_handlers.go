package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/application/container"
	"github.com/AtRiskMedia/cartrecovery-go/internal/application/services"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/caching/sweep"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// SetLogLevelRequest changes one channel's level.
type SetLogLevelRequest struct {
	Channel string `json:"channel" binding:"required"`
	Level   string `json:"level" binding:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// AdminHandlers serves operator maintenance endpoints.
type AdminHandlers struct {
	container *container.Container
}

// NewAdminHandlers creates admin handlers with injected dependencies
func NewAdminHandlers(container *container.Container) *AdminHandlers {
	return &AdminHandlers{container: container}
}

// GetLogLevels returns the current level of every channel.
func (h *AdminHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.container.Logger.GetChannelLevels())
}

// SetLogLevel changes a channel's level at runtime.
func (h *AdminHandlers) SetLogLevel(c *gin.Context) {
	var req SetLogLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	level := logging.ParseLevel(req.Level)
	if err := h.container.Logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": req.Channel, "level": level.String()})
}

// StreamLogs tails the log over SSE, filtered by ?channel and ?level.
func (h *AdminHandlers) StreamLogs(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	filters := logging.AppliedFilters{
		Channel: logging.Channel(c.DefaultQuery("channel", "all")),
		Level:   logging.ParseLevel(c.DefaultQuery("level", "INFO")),
	}

	stream := h.container.LogStream
	client := stream.Register(filters)
	defer stream.Unregister(client)

	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, ": connection established\n\n")
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case entry, ok := <-client.Entries:
			if !ok {
				return false
			}
			data, err := json.Marshal(entry)
			if err != nil {
				return true
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// GetSweep returns the last reconciliation pass.
func (h *AdminHandlers) GetSweep(c *gin.Context) {
	report := h.container.Sweeper.LastReport()
	if c.Query("format") == "text" {
		c.String(http.StatusOK, sweep.NewReporter().Generate(report))
		return
	}
	c.JSON(http.StatusOK, report)
}

// RunSweep forces one pass over stale entries, or ?mode=dirty for
// invalidated entries only.
func (h *AdminHandlers) RunSweep(c *gin.Context) {
	var report sweep.Report
	if c.Query("mode") == string(sweep.ModeDirty) {
		report = h.container.Sweeper.FlushDirty(c.Request.Context())
	} else {
		report = h.container.Sweeper.RunOnce(c.Request.Context())
	}
	c.JSON(http.StatusOK, report)
}

// GetPolicyAudit lists the most recent policy saves.
func (h *AdminHandlers) GetPolicyAudit(c *gin.Context) {
	repo := h.container.AuditRepo
	if repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "local database disabled"})
		return
	}

	entries, err := repo.Recent(c.Request.Context(), queryInt(c, "limit", 20))
	if err != nil {
		respondError(c, h.container.Logger, logging.ChannelDatabase, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// DeleteSnapshots drops the persisted warm-start rows of one cache and marks
// its in-memory entries dirty.
func (h *AdminHandlers) DeleteSnapshots(c *gin.Context) {
	repo := h.container.SnapshotRepo
	if repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "local database disabled"})
		return
	}

	name := c.Param("cache")
	var dirty int
	switch name {
	case services.InsightsCacheName:
		dirty = h.container.Snapshots.InvalidateInsights()
	case services.OrdersCacheName:
		dirty = h.container.Snapshots.InvalidateOrders()
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown cache " + name})
		return
	}

	start := time.Now()
	removed, err := repo.Delete(c.Request.Context(), name)
	if err != nil {
		respondError(c, h.container.Logger, logging.ChannelDatabase, err)
		return
	}
	h.container.Logger.WithContext(logging.ChannelDatabase, c.Request.Context()).Info("Persisted snapshots cleared",
		"cache", name, "rows", removed, "dirty", dirty, "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"cache": name, "removed": removed, "dirty": dirty})
}
