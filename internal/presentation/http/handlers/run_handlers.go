package handlers

import (
	"net/http"

	"github.com/AtRiskMedia/cartrecovery-go/internal/application/services"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// RunNowRequest is the optional body of a run-now request.
type RunNowRequest struct {
	BatchSize int `json:"batchSize" binding:"min=0,max=1000"`
}

// RunHandlers triggers immediate dispatch passes.
type RunHandlers struct {
	runService *services.RunService
	logger     *logging.ChanneledLogger
}

// NewRunHandlers creates run handlers with injected dependencies
func NewRunHandlers(runService *services.RunService, logger *logging.ChanneledLogger) *RunHandlers {
	return &RunHandlers{runService: runService, logger: logger}
}

// RunNow handles POST /recovery/run. An empty body uses the default batch size.
func (h *RunHandlers) RunNow(c *gin.Context) {
	var req RunNowRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
			return
		}
	}

	outcome, err := h.runService.RunNow(c.Request.Context(), req.BatchSize)
	if err != nil {
		respondError(c, h.logger, logging.ChannelCampaign, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// LastRun returns the most recent successful run-now.
func (h *RunHandlers) LastRun(c *gin.Context) {
	outcome, ok := h.runService.LastRun()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run yet"})
		return
	}
	c.JSON(http.StatusOK, outcome)
}
