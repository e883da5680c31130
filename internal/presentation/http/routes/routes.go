// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/AtRiskMedia/cartrecovery-go/internal/application/container"
	"github.com/AtRiskMedia/cartrecovery-go/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/cartrecovery-go/internal/presentation/http/middleware"
	"github.com/AtRiskMedia/cartrecovery-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RequestLogger(container.Logger))
	r.Use(middleware.CORSMiddleware(config.CORSOrigins))

	// Initialize handlers
	healthHandlers := handlers.NewHealthHandlers(container)
	campaignHandlers := handlers.NewCampaignHandlers(container.Campaigns, container.Logger)
	snapshotHandlers := handlers.NewSnapshotHandlers(container.Snapshots, config.DefaultInsightsRange, container.Logger)
	journeyHandlers := handlers.NewJourneyHandlers(
		container.Journeys,
		container.Timelines,
		container.Broadcaster,
		config.DefaultPageSize,
		config.SSEHeartbeatInterval,
		container.Logger,
	)
	runHandlers := handlers.NewRunHandlers(container.Runs, container.Logger)
	adminHandlers := handlers.NewAdminHandlers(container)

	r.GET("/health", healthHandlers.Health)

	api := r.Group("/api/v1")
	{
		recovery := api.Group("/recovery")
		{
			recovery.GET("/campaign", campaignHandlers.GetCampaign)
			recovery.POST("/campaign/validate", campaignHandlers.ValidateCampaign)
			recovery.PUT("/campaign", campaignHandlers.SaveCampaign)

			recovery.GET("/insights", snapshotHandlers.GetInsights)

			recovery.GET("/journeys", journeyHandlers.ListJourneys)
			recovery.GET("/journeys/:id/timeline", journeyHandlers.GetTimeline)
			recovery.GET("/stream", journeyHandlers.StreamJourneys)

			recovery.POST("/run", runHandlers.RunNow)
			recovery.GET("/run", runHandlers.LastRun)
		}

		api.GET("/orders/metrics", snapshotHandlers.GetOrderMetrics)

		admin := api.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware(config.AdminToken))
		{
			admin.GET("/logs/levels", adminHandlers.GetLogLevels)
			admin.POST("/logs/levels", adminHandlers.SetLogLevel)
			admin.GET("/logs/stream", adminHandlers.StreamLogs)
			admin.GET("/sweep", adminHandlers.GetSweep)
			admin.POST("/sweep", adminHandlers.RunSweep)
			admin.GET("/audit", adminHandlers.GetPolicyAudit)
			admin.DELETE("/snapshots/:cache", adminHandlers.DeleteSnapshots)
		}
	}

	return r
}
