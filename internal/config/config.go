package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Server struct {
		Port         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		LogLevel     string
	}

	Wttr struct {
		BaseURL   string
		Timeout   time.Duration
		UserAgent string
	}

	Scheduler struct {
		DefaultLocation    string
		RefreshInterval    time.Duration
		SkipIfStillRunning bool
	}

	CircuitBreaker struct {
		Threshold int
		Timeout   time.Duration
	}

	Retry struct {
		MaxRetries int
		Delay      time.Duration
		Multiplier float64
	}

	History struct {
		DBPath string
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg := &Config{}

	// Server configuration
	cfg.Server.Port = getEnv("PORT", "8080")
	cfg.Server.ReadTimeout = parseDuration(getEnv("FIBER_READ_TIMEOUT", "10s"))
	cfg.Server.WriteTimeout = parseDuration(getEnv("FIBER_WRITE_TIMEOUT", "10s"))
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")

	// Upstream configuration
	cfg.Wttr.BaseURL = strings.TrimRight(getEnv("WTTR_BASE_URL", "https://wttr.in"), "/")
	cfg.Wttr.Timeout = parseDuration(getEnv("HTTP_TIMEOUT", "10s"))
	cfg.Wttr.UserAgent = getEnv("USER_AGENT", "weather-dashboard/1.0")

	// Scheduler configuration
	cfg.Scheduler.DefaultLocation = strings.TrimSpace(getEnv("DEFAULT_LOCATION", "San Francisco"))
	cfg.Scheduler.RefreshInterval = parseDuration(getEnv("REFRESH_INTERVAL", "60s"))
	cfg.Scheduler.SkipIfStillRunning = parseBool(getEnv("SKIP_IF_STILL_RUNNING", "false"))

	// Circuit breaker configuration
	cfg.CircuitBreaker.Threshold = parseInt(getEnv("CIRCUIT_BREAKER_THRESHOLD", "3"))
	cfg.CircuitBreaker.Timeout = parseDuration(getEnv("CIRCUIT_BREAKER_TIMEOUT", "30s"))

	// Retry configuration
	cfg.Retry.MaxRetries = parseInt(getEnv("MAX_RETRIES", "0"))
	cfg.Retry.Delay = parseDuration(getEnv("RETRY_DELAY", "1s"))
	cfg.Retry.Multiplier = parseFloat(getEnv("RETRY_MULTIPLIER", "2"))

	// History is disabled unless a path is given
	cfg.History.DBPath = getEnv("HISTORY_DB_PATH", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every setting that would leave the service unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.Scheduler.DefaultLocation == "" {
		errs = append(errs, errors.New("DEFAULT_LOCATION must not be empty"))
	}
	if c.Scheduler.RefreshInterval < time.Second {
		errs = append(errs, fmt.Errorf("REFRESH_INTERVAL must be at least 1s, got %s", c.Scheduler.RefreshInterval))
	}
	if c.Wttr.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.Wttr.Timeout))
	}
	if c.Wttr.BaseURL == "" {
		errs = append(errs, errors.New("WTTR_BASE_URL must not be empty"))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.Retry.MaxRetries))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		zap.L().Warn("Failed to parse duration", zap.String("value", value), zap.Error(err))
		return 0
	}
	return duration
}

func parseInt(value string) int {
	intValue, err := strconv.Atoi(value)
	if err != nil {
		zap.L().Warn("Failed to parse int", zap.String("value", value), zap.Error(err))
		return 0
	}
	return intValue
}

func parseFloat(value string) float64 {
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		zap.L().Warn("Failed to parse float", zap.String("value", value), zap.Error(err))
		return 0
	}
	return floatValue
}

func parseBool(value string) bool {
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		zap.L().Warn("Failed to parse bool", zap.String("value", value), zap.Error(err))
		return false
	}
	return boolValue
}
