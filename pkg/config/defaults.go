// Package config provides centralized default values for the recovery console
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		if _, err := os.Stat(".env"); err != nil {
			return
		}
		// godotenv.Load never overrides variables already present in the environment.
		if err := godotenv.Load(); err != nil {
			log.Printf("Failed to load .env file: %v", err)
			return
		}
		log.Println("Loaded configuration overrides from .env file")
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, redact(key, val), defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// redact hides secrets in override logs.
func redact(key, val string) string {
	upper := strings.ToUpper(key)
	if strings.Contains(upper, "SECRET") || strings.Contains(upper, "TOKEN") || strings.Contains(upper, "KEY") {
		return "****"
	}
	return val
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	CORSOrigins        []string
	AdminToken         string

	// Remote recovery service
	RecoveryAPIURL     string
	RecoveryAPISecret  string
	RecoveryAPITimeout time.Duration
	ServiceTokenTTL    time.Duration

	// Realtime transport
	RealtimeURL            string
	RealtimeReconnectDelay time.Duration
	EventBusBuffer         int

	// Snapshot caches and reconciliation
	SnapshotTTL          time.Duration
	SweepInterval        time.Duration
	SweepVerbose         bool
	InvalidationDebounce time.Duration
	RunNowBatchSize      int
	DefaultInsightsRange int
	DefaultPageSize      int

	// Listing threshold used until the campaign policy is loaded
	DefaultInactivityMinutes int

	// Local database
	DBDriver           string
	DBPath             string
	TursoDatabaseURL   string
	TursoAuthToken     string
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	SlowQueryThreshold time.Duration

	// Operator run reports
	ResendAPIKey    string
	ReportEmailFrom string
	ReportEmailTo   []string

	// Logging
	LogDirectory string
	LogJSON      bool
	LogToFile    bool
	LogLevel     string

	// SSE
	SSEHeartbeatInterval time.Duration
	SSEClientBuffer      int
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 0)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	CORSOrigins = getEnvList("CORS_ORIGINS", []string{
		"http://localhost:3000",
		"http://localhost:4321",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:4321",
		"http://[::1]:3000", // IPv6 localhost
		"http://[::1]:4321", // IPv6 localhost
	})

	AdminToken = getEnvString("ADMIN_TOKEN", "")

	// Remote recovery service
	RecoveryAPIURL = getEnvString("RECOVERY_API_URL", "http://localhost:9090")
	RecoveryAPISecret = getEnvString("RECOVERY_API_SECRET", "")
	RecoveryAPITimeout = getEnvDuration("RECOVERY_API_TIMEOUT", 10*time.Second)
	ServiceTokenTTL = getEnvDuration("SERVICE_TOKEN_TTL", 5*time.Minute)

	// Realtime transport
	RealtimeURL = getEnvString("REALTIME_URL", "ws://localhost:9090/realtime")
	RealtimeReconnectDelay = getEnvDuration("REALTIME_RECONNECT_DELAY", 5*time.Second)
	EventBusBuffer = getEnvInt("EVENT_BUS_BUFFER", 256)

	// Snapshot caches and reconciliation
	SnapshotTTL = getEnvDuration("SNAPSHOT_TTL", 60*time.Second)
	SweepInterval = getEnvDuration("SWEEP_INTERVAL", 30*time.Second)
	SweepVerbose = getEnvBool("SWEEP_VERBOSE", false)
	InvalidationDebounce = getEnvDuration("INVALIDATION_DEBOUNCE", 150*time.Millisecond)
	RunNowBatchSize = getEnvInt("RUN_NOW_BATCH_SIZE", 50)
	DefaultInsightsRange = getEnvInt("DEFAULT_INSIGHTS_RANGE_DAYS", 30)
	DefaultPageSize = getEnvInt("DEFAULT_PAGE_SIZE", 25)
	DefaultInactivityMinutes = getEnvInt("DEFAULT_INACTIVITY_MINUTES", 30)

	// Local database
	DBDriver = getEnvString("DB_DRIVER", "sqlite3")
	DBPath = getEnvString("DB_PATH", "data/console.db")
	TursoDatabaseURL = getEnvString("TURSO_DATABASE_URL", "")
	TursoAuthToken = getEnvString("TURSO_AUTH_TOKEN", "")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 4)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 2)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 250*time.Millisecond)

	// Operator run reports
	ResendAPIKey = getEnvString("RESEND_API_KEY", "")
	ReportEmailFrom = getEnvString("REPORT_EMAIL_FROM", "recovery@localhost")
	ReportEmailTo = getEnvList("REPORT_EMAIL_TO", nil)

	// Logging
	LogDirectory = getEnvString("LOG_DIR", "logs")
	LogJSON = getEnvBool("LOG_JSON", true)
	LogToFile = getEnvBool("LOG_TO_FILE", false)
	LogLevel = getEnvString("LOG_LEVEL", "INFO")

	// SSE
	SSEHeartbeatInterval = getEnvDuration("SSE_HEARTBEAT_INTERVAL", 30*time.Second)
	SSEClientBuffer = getEnvInt("SSE_CLIENT_BUFFER", 16)
}
