package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config / tuning - defaults
const (
	DefaultPushBatchSize             = 100
	DefaultPushRateLimit             = 50
	DefaultPushTimeoutSeconds        = 10
	DefaultPresenceTTLSeconds        = 30
	DefaultDebounceWindowSeconds     = 10
	DefaultDebounceMaxEntries        = 1000
	DefaultEnqueueDedupWindowSeconds = 30
	DefaultMaxAttempts               = 5
	DefaultStaleAfterHours           = 24
	DefaultDrainBatchSize            = 10
	DefaultDrainIntervalSeconds      = 60
	DefaultLeaseSeconds              = 120
	DefaultReaperIntervalSeconds     = 15
	DefaultDbMaxOpenConns            = 25
	DefaultDbMaxIdleConns            = 5
	DefaultDbConnMaxLifetimeMinutes  = 30
	DefaultDbConnMaxIdleTimeMinutes  = 5
)

// Configuration loaded from environment
var (
	SqlConnString             string
	PushGatewayURL            string
	HealthCheckPort           string
	PushBatchSize             int
	PushRateLimit             int
	PushTimeoutSeconds        int
	PresenceTTLSeconds        int
	DebounceWindowSeconds     int
	DebounceMaxEntries        int
	EnqueueDedupWindowSeconds int
	MaxAttempts               int
	StaleAfterHours           int
	DrainBatchSize            int
	DrainIntervalSeconds      int
	LeaseSeconds              int
	ReaperIntervalSeconds     int
	DbMaxOpenConns            int
	DbMaxIdleConns            int
	DbConnMaxLifetimeMinutes  int
	DbConnMaxIdleTimeMinutes  int
)

// WorkerId unique for this process
var WorkerId string

// The Go runtime automatically calls all init() functions when a package is initialized
func init() {
	WorkerId = fmt.Sprintf("%s-%d", uuid.New().String(), os.Getpid())

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables or defaults")
	}

	// Load configuration
	LoadConfig()
}

// GetEnv retrieves an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt retrieves an integer environment variable or returns a default value
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

// LoadConfig loads all configuration from environment variables
func LoadConfig() {
	HealthCheckPort = GetEnv("HEALTH_CHECK_PORT", "8080")

	SqlConnString = GetEnv("DB_CONNECTION_STRING", "")
	if SqlConnString == "" {
		log.Println("Warning: DB_CONNECTION_STRING not set. Required at startup.")
	}

	// Push gateway configuration
	PushGatewayURL = GetEnv("PUSH_GATEWAY_URL", "")
	if PushGatewayURL == "" {
		log.Println("Warning: PUSH_GATEWAY_URL not set. Required at startup.")
	}
	PushBatchSize = GetEnvInt("PUSH_BATCH_SIZE", DefaultPushBatchSize)
	PushRateLimit = GetEnvInt("PUSH_RATE_LIMIT", DefaultPushRateLimit)
	PushTimeoutSeconds = GetEnvInt("PUSH_TIMEOUT_SECONDS", DefaultPushTimeoutSeconds)

	// Delivery decision windows
	PresenceTTLSeconds = GetEnvInt("PRESENCE_TTL_SECONDS", DefaultPresenceTTLSeconds)
	DebounceWindowSeconds = GetEnvInt("DEBOUNCE_WINDOW_SECONDS", DefaultDebounceWindowSeconds)
	DebounceMaxEntries = GetEnvInt("DEBOUNCE_MAX_ENTRIES", DefaultDebounceMaxEntries)
	EnqueueDedupWindowSeconds = GetEnvInt("ENQUEUE_DEDUP_WINDOW_SECONDS", DefaultEnqueueDedupWindowSeconds)

	// Queue / worker configuration with defaults
	MaxAttempts = GetEnvInt("MAX_ATTEMPTS", DefaultMaxAttempts)
	StaleAfterHours = GetEnvInt("STALE_AFTER_HOURS", DefaultStaleAfterHours)
	DrainBatchSize = GetEnvInt("DRAIN_BATCH_SIZE", DefaultDrainBatchSize)
	DrainIntervalSeconds = GetEnvInt("DRAIN_INTERVAL_SECONDS", DefaultDrainIntervalSeconds)
	LeaseSeconds = GetEnvInt("LEASE_SECONDS", DefaultLeaseSeconds)
	ReaperIntervalSeconds = GetEnvInt("REAPER_INTERVAL_SECONDS", DefaultReaperIntervalSeconds)

	// Connection pool
	DbMaxOpenConns = GetEnvInt("DB_MAX_OPEN_CONNS", DefaultDbMaxOpenConns)
	DbMaxIdleConns = GetEnvInt("DB_MAX_IDLE_CONNS", DefaultDbMaxIdleConns)
	DbConnMaxLifetimeMinutes = GetEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", DefaultDbConnMaxLifetimeMinutes)
	DbConnMaxIdleTimeMinutes = GetEnvInt("DB_CONN_MAX_IDLE_TIME_MINUTES", DefaultDbConnMaxIdleTimeMinutes)

	log.Println("Configuration loaded successfully")
}
