package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	ErrMissingConfig     = errors.New("missing required configuration")
	ErrInvalidConfig     = errors.New("invalid configuration value")
	ErrEncryptionKeySize = errors.New("encryption key must be exactly 32 bytes (64 hex characters)")
	ErrSyncSecretSize    = errors.New("sync secret must be at least 32 characters")
)

// Environment represents the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Google       GoogleConfig
	Security     SecurityConfig
	Database     DatabaseConfig
	Sync         SyncConfig
	RateLimiting RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int
	Environment Environment
}

// GoogleConfig holds the OAuth client used to exchange stored refresh
// tokens for short-lived access tokens.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	EncryptionKey []byte // seals refresh tokens at rest
	SyncSecret    string // shared secret for the sync trigger
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string
}

// SyncConfig holds reconciliation tuning.
type SyncConfig struct {
	AccountID       string // account the scheduled trigger runs for
	WindowDays      int    // bounded listing window for the initial full sync
	PushBatch       int    // max pending/error rows exported per run
	CallTimeoutSecs int    // per remote call timeout
	IntervalSecs    int    // optional internal scheduler; 0 = external trigger only
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load loads configuration from environment variables.
// It attempts to load from .env file first, but continues if not found.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional

	cfg := &Config{}

	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%w: PORT: %w", ErrInvalidConfig, err)
	}
	cfg.Server.Port = port
	cfg.Server.Environment = Environment(strings.ToLower(getEnv("ENVIRONMENT", "production")))

	cfg.Google.ClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.Google.ClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")

	encKeyHex := os.Getenv("ENCRYPTION_KEY")
	if encKeyHex != "" {
		encKey, err := hex.DecodeString(encKeyHex)
		if err != nil {
			return nil, fmt.Errorf("%w: ENCRYPTION_KEY: invalid hex: %w", ErrInvalidConfig, err)
		}
		if len(encKey) != 32 {
			return nil, ErrEncryptionKeySize
		}
		cfg.Security.EncryptionKey = encKey
	}

	cfg.Security.SyncSecret = os.Getenv("SYNC_SECRET")
	if cfg.Security.SyncSecret != "" && len(cfg.Security.SyncSecret) < 32 {
		return nil, ErrSyncSecretSize
	}

	cfg.Database.Path = getEnv("DATABASE_PATH", "./data/caseflow.db")

	cfg.Sync.AccountID = getEnv("SYNC_ACCOUNT_ID", "default")

	windowDays, err := getEnvInt("SYNC_WINDOW_DAYS", 90)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_WINDOW_DAYS: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.WindowDays = windowDays

	pushBatch, err := getEnvInt("SYNC_PUSH_BATCH", 50)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_PUSH_BATCH: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.PushBatch = pushBatch

	callTimeout, err := getEnvInt("SYNC_CALL_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_CALL_TIMEOUT_SECONDS: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.CallTimeoutSecs = callTimeout

	interval, err := getEnvInt("SYNC_INTERVAL_SECONDS", 0)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_INTERVAL_SECONDS: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.IntervalSecs = interval

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 10.0)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_RPS: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.RPS = rps

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_BURST: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.Burst = burst

	missing := cfg.getMissingRequired()
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	return cfg, nil
}

// getMissingRequired returns a list of missing required configuration values.
func (c *Config) getMissingRequired() []string {
	var missing []string

	if c.Google.ClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if c.Google.ClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if len(c.Security.EncryptionKey) == 0 {
		missing = append(missing, "ENCRYPTION_KEY")
	}
	if c.Security.SyncSecret == "" {
		missing = append(missing, "SYNC_SECRET")
	}

	return missing
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	return parsed, nil
}

// getEnvFloat returns the float value of an environment variable or a default.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float: %w", err)
	}
	return parsed, nil
}
