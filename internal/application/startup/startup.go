// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/application/container"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/cartrecovery-go/internal/presentation/http/server"
	"github.com/AtRiskMedia/cartrecovery-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// DriverNone disables the local database.
const DriverNone = "none"

// Initialize performs the complete startup sequence and blocks until a
// shutdown signal arrives.
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("\033[32m" + "cart recovery console" + "\033[0m")

	// Step 1: Channeled logging, mirrored to the live log stream
	logStream := logging.NewLogBroadcaster(0)
	logger, err := newLogger(logStream)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Close()
	logger.Startup().Info("Channeled logging initialized", "level", config.LogLevel, "json", config.LogJSON)

	// Step 2: Remote recovery API client
	tokens := security.NewTokenSource(config.RecoveryAPISecret, "recovery-console", config.ServiceTokenTTL)
	client := recoveryapi.NewHTTPClient(config.RecoveryAPIURL, config.RecoveryAPITimeout,
		recoveryapi.WithTokenSource(tokens),
		recoveryapi.WithLogger(logger),
	)
	if config.RecoveryAPISecret == "" {
		logger.Startup().Warn("RECOVERY_API_SECRET not set, requests are sent without a service token")
	}

	// Step 3: Local database for warm start and policy audit
	db := openDatabase(ctx, logger)
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				logger.Shutdown().Error("Error closing database", "error", err.Error())
			}
		}()
	}

	// Step 4: Operator run reports
	notifier := email.NewRunReportNotifier(config.ResendAPIKey, config.ReportEmailFrom, config.ReportEmailTo, logger)
	if !notifier.Enabled() {
		logger.Startup().Info("Run report email disabled", "hasKey", config.ResendAPIKey != "", "recipients", len(config.ReportEmailTo))
	}

	// Step 5: Dependency injection container
	appContainer := container.NewContainer(container.Dependencies{
		Logger:    logger,
		LogStream: logStream,
		Client:    client,
		DB:        db,
		Notifier:  notifier,
		Tokens:    tokens,
	})
	logger.Startup().Info("Dependency injection container created")

	// Step 6: Warm start from persisted snapshots
	if appContainer.SnapshotRepo != nil {
		phaseStart := time.Now()
		restored, err := appContainer.Snapshots.Restore(ctx, appContainer.SnapshotRepo)
		if err != nil {
			logger.Startup().Warn("Snapshot restore failed, starting cold", "error", err.Error())
		}
		appContainer.Snapshots.EnablePersistence(appContainer.SnapshotRepo)
		logger.Startup().Info("Snapshots restored", "entries", restored, "duration", time.Since(phaseStart))
	}

	// Step 7: Load the campaign policy so the listing threshold is known
	if _, err := appContainer.Campaigns.Get(ctx, false); err != nil {
		logger.Startup().Warn("Campaign policy not loaded, using default listing threshold",
			"inactivityMinutes", config.DefaultInactivityMinutes, "error", err.Error())
	}

	// Step 8: Background workers
	go appContainer.Sweeper.Start(ctx)
	go appContainer.Invalidator.Run(ctx, appContainer.Bus)
	if appContainer.Realtime != nil {
		go appContainer.Realtime.Run(ctx)
	} else {
		logger.Startup().Warn("REALTIME_URL not set, relying on the reconciliation sweep only")
	}
	go func() {
		report := appContainer.Sweeper.RunOnce(ctx)
		logger.Startup().Info("Initial reconciliation completed",
			"refreshed", report.Refreshed, "failed", report.Failed, "duration", report.Duration)
	}()

	// Step 9: HTTP server
	httpServer := server.New(config.Port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+config.Port)
		serverErr <- httpServer.Start()
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", config.Port,
		"persistence", db != nil,
		"realtime", appContainer.Realtime != nil)

	select {
	case <-gracefulShutdown:
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	case err := <-serverErr:
		if err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
			cancelBackgroundTasks()
			return err
		}
	}

	shutdownStart := time.Now()
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	appContainer.Bus.Close()

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))
	return nil
}

func newLogger(logStream *logging.LogBroadcaster) (*logging.ChanneledLogger, error) {
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToFile = config.LogToFile
	cfg.LogDirectory = config.LogDirectory
	cfg.JSONFormat = config.LogJSON
	cfg.DefaultLevel = logging.ParseLevel(config.LogLevel)
	if config.LogJSON {
		cfg.Output = logging.NewSSEWriter(logStream)
	}
	return logging.NewChanneledLogger(cfg)
}

// openDatabase returns nil when persistence is disabled or unavailable; the
// console still works, it just starts cold.
func openDatabase(ctx context.Context, logger *logging.ChanneledLogger) *database.DB {
	if config.DBDriver == DriverNone {
		logger.Startup().Info("Local database disabled")
		return nil
	}

	phaseStart := time.Now()
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := database.Open(openCtx, database.Options{
		Driver:       config.DBDriver,
		Path:         config.DBPath,
		TursoURL:     config.TursoDatabaseURL,
		TursoToken:   config.TursoAuthToken,
		MaxOpenConns: config.DBMaxOpenConns,
		MaxIdleConns: config.DBMaxIdleConns,
	}, logger)
	if err != nil {
		logger.LogStartupPhase("database", time.Since(phaseStart), false)
		logger.Startup().Warn("Local database unavailable, continuing without persistence", "error", err.Error())
		return nil
	}

	if err := database.NewTableCreator().CreateSchema(openCtx, db); err != nil {
		logger.LogStartupPhase("database", time.Since(phaseStart), false)
		logger.Startup().Warn("Schema creation failed, continuing without persistence", "error", err.Error())
		db.Close()
		return nil
	}

	logger.LogStartupPhase("database", time.Since(phaseStart), true)
	return db
}

// setupLogging configures gin and the standard logger used before the
// channeled logger exists.
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
