// Package handlers provides the console's HTTP handlers
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/AtRiskMedia/cartrecovery-go/internal/application/services"
	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/campaign"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
	"github.com/gin-gonic/gin"
)

// respondError maps service errors onto HTTP statuses:
//
//	*campaign.ValidationError     422 with field errors
//	*services.TransientFetchError 502, retryable
//	*services.ActionError         502
//	remote 404                    404
func respondError(c *gin.Context, logger *logging.ChanneledLogger, channel logging.Channel, err error) {
	var validation *campaign.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": validation.Fields})
		return
	}

	var apiErr *recoveryapi.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": apiErr.Message})
		return
	}

	log := logger.WithContext(channel, c.Request.Context())

	var fetchErr *services.TransientFetchError
	if errors.As(err, &fetchErr) {
		log.Warn("Remote fetch failed", "op", fetchErr.Op, "error", err.Error())
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": true})
		return
	}

	var actionErr *services.ActionError
	if errors.As(err, &actionErr) {
		log.Error("Operator action failed", "op", actionErr.Op, "error", err.Error())
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": false})
		return
	}

	if errors.Is(err, context.Canceled) {
		// client went away
		c.Status(499)
		return
	}

	logger.LogError(channel, c.Request.Method+" "+c.FullPath(), err, map[string]any{
		"requestId": c.Request.Context().Value(logging.RequestIDKey),
	})
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
