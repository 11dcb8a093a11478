package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort string

	// Marketplace backend
	MarketplaceBaseURL string
	MarketplaceAPIKey  string
	MarketplaceTimeout time.Duration

	// Submission pipeline
	DebounceWindow   time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	SessionTTL       time.Duration
	PaymentHandleTTL time.Duration

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	// Helper for durations expressed as integer seconds
	getSeconds := func(key, defaultValue string) (time.Duration, error) {
		secs, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(secs) * time.Second, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.MarketplaceBaseURL, err = getRequiredEnv("MARKETPLACE_BASE_URL")
	if err != nil {
		return nil, err
	}
	cfg.MarketplaceAPIKey = getEnv("MARKETPLACE_API_KEY", "")

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.JwtTTL, err = getSeconds("JWT_TTL_SECONDS", "3600")
	if err != nil {
		return nil, err
	}

	cfg.MarketplaceTimeout, err = getSeconds("MARKETPLACE_TIMEOUT_SECONDS", "15")
	if err != nil {
		return nil, err
	}

	debounceMs, err := strconv.ParseInt(getEnv("DEBOUNCE_WINDOW_MS", "400"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEBOUNCE_WINDOW_MS: %w", err)
	}
	cfg.DebounceWindow = time.Duration(debounceMs) * time.Millisecond

	cfg.RetryMaxAttempts, err = strconv.Atoi(getEnv("RETRY_MAX_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_MAX_ATTEMPTS: %w", err)
	}

	retryBaseMs, err := strconv.ParseInt(getEnv("RETRY_BASE_DELAY_MS", "200"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_BASE_DELAY_MS: %w", err)
	}
	cfg.RetryBaseDelay = time.Duration(retryBaseMs) * time.Millisecond

	retryMaxMs, err := strconv.ParseInt(getEnv("RETRY_MAX_DELAY_MS", "2000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RETRY_MAX_DELAY_MS: %w", err)
	}
	cfg.RetryMaxDelay = time.Duration(retryMaxMs) * time.Millisecond

	cfg.SessionTTL, err = getSeconds("SESSION_TTL_SECONDS", "86400")
	if err != nil {
		return nil, err
	}

	cfg.PaymentHandleTTL, err = getSeconds("PAYMENT_HANDLE_TTL_SECONDS", "1800")
	if err != nil {
		return nil, err
	}

	// Rate Limiting
	cfg.RateLimitSoftBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_BUCKET_SIZE", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitSoftRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_REFILL_RATE", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_REFILL_RATE: %w", err)
	}
	cfg.RateLimitHardBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitHardRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_REFILL_RATE: %w", err)
	}

	return cfg, nil
}

// RetryPolicyParams returns the centralized retry parameters in the order
// (attempts, base, cap).
func (c *Config) RetryPolicyParams() (int, time.Duration, time.Duration) {
	return c.RetryMaxAttempts, c.RetryBaseDelay, c.RetryMaxDelay
}
