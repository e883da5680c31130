// Package database opens the console's local store. The store is a local
// SQLite file by default, or a Turso database through libsql.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

const (
	DriverSQLite = "sqlite3"
	DriverLibSQL = "libsql"
)

// DB wraps the standard connection together with the driver it was opened with.
type DB struct {
	*sql.DB
	Driver string
}

// Options describe how to reach the local store.
type Options struct {
	Driver       string
	Path         string
	TursoURL     string
	TursoToken   string
	MaxOpenConns int
	MaxIdleConns int
}

// DataSourceName builds the DSN for the configured driver.
func DataSourceName(opts Options) (string, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		if opts.Path == "" {
			return "", fmt.Errorf("sqlite3 requires a database path")
		}
		return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", opts.Path), nil
	case DriverLibSQL:
		if opts.TursoURL == "" {
			return "", fmt.Errorf("libsql requires TURSO_DATABASE_URL")
		}
		if opts.TursoToken == "" {
			return opts.TursoURL, nil
		}
		return fmt.Sprintf("%s?authToken=%s", opts.TursoURL, opts.TursoToken), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

// Open resolves the DSN, creates the parent directory for SQLite files and
// establishes a verified connection.
func Open(ctx context.Context, opts Options, logger *logging.ChanneledLogger) (*DB, error) {
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	dsn, err := DataSourceName(opts)
	if err != nil {
		return nil, err
	}
	if opts.Driver == DriverSQLite {
		if dir := filepath.Dir(opts.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := NewConnectionWithLogger(ctx, opts.Driver, dsn, logger)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	return db, nil
}

// NewConnection establishes a new database connection for the specified driver.
func NewConnection(ctx context.Context, driverName, dataSourceName string) (*DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db, Driver: driverName}, nil
}

// NewConnectionWithLogger establishes a new database connection for the specified driver with logging.
func NewConnectionWithLogger(ctx context.Context, driverName, dataSourceName string, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	logger.Database().Debug("Creating new database connection", "driverName", driverName)

	db, err := NewConnection(ctx, driverName, dataSourceName)
	if err != nil {
		logger.Database().Error("Failed to open database connection", "error", err.Error(), "driverName", driverName)
		return nil, fmt.Errorf("failed to connect to %s database: %w", driverName, err)
	}

	duration := time.Since(start)
	logger.Database().Info("Database connection established", "driverName", driverName, "duration", duration)
	CheckAndLogSlowQuery(logger, "DATABASE_CONNECTION", duration)

	return db, nil
}
