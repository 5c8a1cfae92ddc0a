package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultAppName        = "AtlasPay"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultBaseURL        = "http://localhost:8080"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	BaseURL        string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// Risk and approval limits.
	MaxSingleTransfer  decimal.Decimal
	DailyTransferLimit decimal.Decimal
	ApprovalThreshold  decimal.Decimal
	MaxLoginAttempts   int
	APIRateLimit       int
	APIRateWindow      time.Duration

	// Checkout timings.
	SessionTTL time.Duration
	OTPTTL     time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Defaults()
	cfg.AppName = getEnv("APP_NAME", defaultAppName)
	cfg.AppEnv = getEnv("APP_ENV", defaultAppEnv)
	cfg.Port = getEnv("PORT", defaultPort)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel))
	cfg.BaseURL = strings.TrimRight(getEnv("APP_URL", defaultBaseURL), "/")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	var err error
	if cfg.MaxSingleTransfer, err = decimalEnv("MAX_SINGLE_TRANSACTION", cfg.MaxSingleTransfer); err != nil {
		return Config{}, err
	}
	if cfg.DailyTransferLimit, err = decimalEnv("DAILY_TRANSACTION_LIMIT", cfg.DailyTransferLimit); err != nil {
		return Config{}, err
	}
	if cfg.ApprovalThreshold, err = decimalEnv("ADMIN_APPROVAL_THRESHOLD", cfg.ApprovalThreshold); err != nil {
		return Config{}, err
	}
	if cfg.MaxLoginAttempts, err = intEnv("MAX_LOGIN_ATTEMPTS", cfg.MaxLoginAttempts); err != nil {
		return Config{}, err
	}
	if cfg.APIRateLimit, err = intEnv("API_RATE_LIMIT", cfg.APIRateLimit); err != nil {
		return Config{}, err
	}
	windowSeconds, err := intEnv("API_RATE_WINDOW", int(cfg.APIRateWindow/time.Second))
	if err != nil {
		return Config{}, err
	}
	cfg.APIRateWindow = time.Duration(windowSeconds) * time.Second

	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownPeriod = d
	}
	if v := os.Getenv("IDEMPOTENCY_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
		}
		cfg.IdempotencyTTL = d
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	return cfg, nil
}

// Defaults returns a Config with every limit at its default value. Tests and
// service constructors use it instead of requiring a populated environment.
func Defaults() Config {
	return Config{
		AppName:            defaultAppName,
		AppEnv:             defaultAppEnv,
		Port:               defaultPort,
		LogLevel:           defaultLogLevel,
		BaseURL:            defaultBaseURL,
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
		MaxSingleTransfer:  decimal.NewFromInt(50000),
		DailyTransferLimit: decimal.NewFromInt(200000),
		ApprovalThreshold:  decimal.NewFromInt(50000),
		MaxLoginAttempts:   3,
		APIRateLimit:       100,
		APIRateWindow:      time.Minute,
		SessionTTL:         30 * time.Minute,
		OTPTTL:             5 * time.Minute,
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func decimalEnv(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
