// Package container wires the console's services and infrastructure
package container

import (
	"github.com/AtRiskMedia/cartrecovery-go/internal/application/services"
	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/journey"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/caching"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/caching/snapshot"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/caching/sweep"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/persistence/audit"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/persistence/snapshots"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/realtime"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/cartrecovery-go/pkg/config"
)

// Dependencies are the externally constructed pieces the container builds on.
// DB, Tokens and Realtime may be nil.
type Dependencies struct {
	Logger    *logging.ChanneledLogger
	LogStream *logging.LogBroadcaster
	Client    recoveryapi.Client
	DB        *database.DB
	Notifier  email.Notifier
	Tokens    *security.TokenSource
}

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application services
	Snapshots   *services.SnapshotService
	Journeys    *services.JourneyList
	Campaigns   *services.CampaignService
	Timelines   *services.TimelineService
	Runs        *services.RunService
	Invalidator *services.Invalidator

	// Messaging
	Bus         *messaging.EventBus
	Broadcaster *messaging.SSEBroadcaster
	Realtime    *realtime.Subscriber

	// Reconciliation
	Sweeper *sweep.Worker

	// Persistence, nil when the local database is disabled
	DB           *database.DB
	SnapshotRepo *snapshots.SnapshotRepository
	AuditRepo    *audit.PolicyAuditRepository

	Logger    *logging.ChanneledLogger
	LogStream *logging.LogBroadcaster
}

// NewContainer creates and wires all singleton services
func NewContainer(deps Dependencies) *Container {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	logStream := deps.LogStream
	if logStream == nil {
		logStream = logging.NewLogBroadcaster(0)
	}

	c := &Container{
		DB:        deps.DB,
		Logger:    logger,
		LogStream: logStream,
	}

	c.Bus = messaging.NewEventBus(config.EventBusBuffer, logger)
	c.Broadcaster = messaging.NewSSEBroadcaster(config.SSEClientBuffer, logger)

	var auditor services.PolicyAuditor
	if deps.DB != nil {
		c.SnapshotRepo = snapshots.NewSnapshotRepository(deps.DB, logger)
		c.AuditRepo = audit.NewPolicyAuditRepository(deps.DB, logger)
		auditor = c.AuditRepo
	}

	c.Snapshots = services.NewSnapshotService(deps.Client, logger, snapshot.WithTTL(config.SnapshotTTL))
	c.Journeys = services.NewJourneyList(deps.Client,
		journey.Query{Limit: config.DefaultPageSize},
		config.DefaultInactivityMinutes,
		logger,
		services.WithListTTL(config.SnapshotTTL),
		services.WithBroadcaster(c.Broadcaster),
	)
	c.Campaigns = services.NewCampaignService(deps.Client, auditor, c.Journeys, logger)
	c.Timelines = services.NewTimelineService(deps.Client, c.Campaigns, logger)
	c.Runs = services.NewRunService(deps.Client, c.Bus, deps.Notifier, config.RunNowBatchSize, logger)

	targets := append(c.Snapshots.Targets(), c.Journeys.SweepTarget())
	c.Sweeper = sweep.NewWorker(caching.NewKeyLock(), sweep.NewConfig(), logger, targets...)
	c.Invalidator = services.NewInvalidator(c.Snapshots, c.Journeys, c.Sweeper, config.InvalidationDebounce, logger)

	if config.RealtimeURL != "" {
		c.Realtime = realtime.NewSubscriber(config.RealtimeURL, deps.Tokens, config.RealtimeReconnectDelay, c.Bus, logger)
	}

	return c
}
