package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"betengine/database"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string
	DatabaseName string

	// HTTP configuration
	HTTPPort   string
	CronSecret string // Shared secret required on scheduler-triggered endpoints

	// NATS configuration
	NATSEnabled     bool
	NATSServers     string // NATS server addresses (comma-separated)
	BroadcastBucket string // JetStream KV bucket mirroring live round state
	EventStream     string // JetStream stream receiving domain events

	// Wallet
	StartingBalance int64

	// Round lifecycle
	RoundDuration     time.Duration
	RoundCooldown     time.Duration
	StuckRoundTimeout time.Duration
	MaxSettleAttempts int
	SettleBatchSize   int

	// Draw game
	DrawNumberMax int // numbers are drawn from [1, DrawNumberMax]
	DrawCount     int
	DrawStakeUnit int64 // draw stakes must be a multiple of this

	// Parity game
	ParityNumberMax int // n1, n2 are drawn from [0, ParityNumberMax]
	ParityReward    int64

	// Duel game
	DuelMaxRounds   int
	DuelMoveTimeout time.Duration
	DuelMaxNumber   int

	// Payments
	PaymentSessionExpiry time.Duration
	WithdrawalFeeBps     int64 // fee in basis points of the requested amount

	// In-process scheduler
	SchedulerEnabled  bool
	SchedulerInterval time.Duration

	// OpenTelemetry
	OTelEnabled              bool
	OTelServiceName          string
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelExportIntervalMillis int

	LogLevel string

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// load loads configuration from environment variables, reading a .env file first when present
func load() (*Config, error) {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	config := &Config{
		// Database
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseName: os.Getenv("DATABASE_NAME"),

		// HTTP
		HTTPPort:   getEnvWithDefault("HTTP_PORT", "8080"),
		CronSecret: os.Getenv("CRON_SECRET"),

		// NATS
		NATSEnabled:     getBoolEnv("NATS_ENABLED", false),
		NATSServers:     getEnvWithDefault("NATS_SERVERS", "nats://nats:4222"),
		BroadcastBucket: getEnvWithDefault("BROADCAST_BUCKET", "live_rounds"),
		EventStream:     getEnvWithDefault("EVENT_STREAM", "BETENGINE_EVENTS"),

		StartingBalance: getInt64Env("STARTING_BALANCE", 0),

		// Rounds
		RoundDuration:     getDurationEnv("ROUND_DURATION", 60*time.Second),
		RoundCooldown:     getDurationEnv("ROUND_COOLDOWN", 10*time.Second),
		StuckRoundTimeout: getDurationEnv("STUCK_ROUND_TIMEOUT", 2*time.Minute),
		MaxSettleAttempts: getIntEnv("MAX_SETTLE_ATTEMPTS", 5),
		SettleBatchSize:   getIntEnv("SETTLE_BATCH_SIZE", 400),

		DrawNumberMax: getIntEnv("DRAW_NUMBER_MAX", 10),
		DrawCount:     getIntEnv("DRAW_COUNT", 5),
		DrawStakeUnit: getInt64Env("DRAW_STAKE_UNIT", 10),

		ParityNumberMax: getIntEnv("PARITY_NUMBER_MAX", 9),
		ParityReward:    getInt64Env("PARITY_REWARD", 500),

		DuelMaxRounds:   getIntEnv("DUEL_MAX_ROUNDS", 30),
		DuelMoveTimeout: getDurationEnv("DUEL_MOVE_TIMEOUT", 30*time.Second),
		DuelMaxNumber:   getIntEnv("DUEL_MAX_NUMBER", 10),

		PaymentSessionExpiry: getDurationEnv("PAYMENT_SESSION_EXPIRY", 20*time.Minute),
		WithdrawalFeeBps:     getInt64Env("WITHDRAWAL_FEE_BPS", 200),

		SchedulerEnabled:  getBoolEnv("SCHEDULER_ENABLED", false),
		SchedulerInterval: getDurationEnv("SCHEDULER_INTERVAL", 5*time.Second),

		// OpenTelemetry
		OTelEnabled:              getBoolEnv("OTEL_ENABLED", false),
		OTelServiceName:          getEnvWithDefault("OTEL_SERVICE_NAME", "betengine"),
		OTelExporterType:         getEnvWithDefault("OTEL_EXPORTER_TYPE", "console"),
		OTelOTLPEndpoint:         getEnvWithDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317"),
		OTelExportIntervalMillis: getIntEnv("OTEL_EXPORT_INTERVAL_MILLIS", 60000),

		LogLevel: getEnvWithDefault("LOG_LEVEL", "info"),

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.DatabaseName != "" && strings.TrimSpace(config.DatabaseName) == "" {
			return nil, fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
		if config.IsProduction() && config.CronSecret == "" {
			return nil, fmt.Errorf("CRON_SECRET is required in production")
		}
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.DrawCount < 2 || c.DrawCount > c.DrawNumberMax {
		return fmt.Errorf("DRAW_COUNT must be between 2 and DRAW_NUMBER_MAX (%d), got %d", c.DrawNumberMax, c.DrawCount)
	}
	if c.DrawStakeUnit < 1 {
		return fmt.Errorf("DRAW_STAKE_UNIT must be at least 1")
	}
	if c.ParityNumberMax < 1 {
		return fmt.Errorf("PARITY_NUMBER_MAX must be positive")
	}
	if c.SettleBatchSize <= 0 || c.SettleBatchSize > 500 {
		return fmt.Errorf("SETTLE_BATCH_SIZE must be between 1 and 500, got %d", c.SettleBatchSize)
	}
	if c.MaxSettleAttempts < 1 {
		return fmt.Errorf("MAX_SETTLE_ATTEMPTS must be at least 1")
	}
	if c.DuelMaxRounds < 1 {
		return fmt.Errorf("DUEL_MAX_ROUNDS must be at least 1")
	}
	if c.RoundDuration <= 0 {
		return fmt.Errorf("ROUND_DURATION must be positive")
	}
	return nil
}

// getEnvWithDefault returns the environment variable value or a default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go duration strings ("45s", "2m")
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:          "test",
		HTTPPort:             "0",
		CronSecret:           "test-secret",
		BroadcastBucket:      "live_rounds_test",
		EventStream:          "BETENGINE_EVENTS_TEST",
		StartingBalance:      0,
		RoundDuration:        60 * time.Second,
		RoundCooldown:        10 * time.Second,
		StuckRoundTimeout:    2 * time.Minute,
		MaxSettleAttempts:    3,
		SettleBatchSize:      400,
		DrawNumberMax:        10,
		DrawCount:            5,
		DrawStakeUnit:        10,
		ParityNumberMax:      9,
		ParityReward:         500,
		DuelMaxRounds:        30,
		DuelMoveTimeout:      30 * time.Second,
		DuelMaxNumber:        10,
		PaymentSessionExpiry: 20 * time.Minute,
		WithdrawalFeeBps:     200,
		SchedulerInterval:    5 * time.Second,
		OTelExporterType:     "none",
		LogLevel:             "debug",
	}
}
