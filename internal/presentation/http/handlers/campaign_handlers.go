package handlers

import (
	"net/http"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/application/services"
	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/campaign"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// CampaignHandlers serves the campaign policy editor.
type CampaignHandlers struct {
	campaignService *services.CampaignService
	logger          *logging.ChanneledLogger
}

// NewCampaignHandlers creates campaign handlers with injected dependencies
func NewCampaignHandlers(campaignService *services.CampaignService, logger *logging.ChanneledLogger) *CampaignHandlers {
	return &CampaignHandlers{
		campaignService: campaignService,
		logger:          logger,
	}
}

// GetCampaign returns the remote policy with its computed recovery window.
func (h *CampaignHandlers) GetCampaign(c *gin.Context) {
	view, err := h.campaignService.Get(c.Request.Context(), queryBool(c, "force"))
	if err != nil {
		respondError(c, h.logger, logging.ChannelCampaign, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ValidateCampaign runs the validator on form input without saving.
func (h *CampaignHandlers) ValidateCampaign(c *gin.Context) {
	var raw campaign.RawConfig
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.campaignService.Validate(raw))
}

// SaveCampaign validates and saves the policy. Invalid input is rejected with
// 422 before anything is sent upstream.
func (h *CampaignHandlers) SaveCampaign(c *gin.Context) {
	start := time.Now()
	var raw campaign.RawConfig
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	result, err := h.campaignService.Save(c.Request.Context(), raw)
	if err != nil {
		respondError(c, h.logger, logging.ChannelCampaign, err)
		return
	}

	h.logger.WithContext(logging.ChannelCampaign, c.Request.Context()).Info("Campaign save request completed",
		"windowExtended", result.Validation.WindowExtended, "auditId", result.AuditID, "duration", time.Since(start))
	c.JSON(http.StatusOK, result)
}
