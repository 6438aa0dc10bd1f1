// Package config loads application configuration from environment
// variables with validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/courseforge/courseforge/pkg/observability"
	"github.com/courseforge/courseforge/pkg/storage/postgres"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      postgres.Config
	Redis         RedisConfig
	Observability ObservabilityConfig
	Invitations   InvitationConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// RedisConfig holds Redis settings for distributed rate limiting
type RedisConfig struct {
	URL      string // empty disables Redis and falls back to in-memory limits
	Password string
	DB       int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// InvitationConfig holds invitation lifecycle settings
type InvitationConfig struct {
	// CleanupSchedule is a cron expression for the expired-invitation sweep
	CleanupSchedule string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("COURSEFORGE_HOST", "0.0.0.0"),
			Port:            getEnv("COURSEFORGE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("COURSEFORGE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("COURSEFORGE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("COURSEFORGE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("COURSEFORGE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("COURSEFORGE_HEALTH_PORT", "9090"),
		},
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Observability: loadObservabilityConfig(),
		Invitations: InvitationConfig{
			CleanupSchedule: getEnv("COURSEFORGE_INVITE_CLEANUP_SCHEDULE", "@hourly"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() postgres.Config {
	cfg := postgres.DefaultConfig()
	cfg.URL = getEnv("COURSEFORGE_POSTGRES_URL", "")

	if maxConns := getEnvInt("COURSEFORGE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("COURSEFORGE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("COURSEFORGE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}

	return cfg
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("COURSEFORGE_REDIS_URL", ""),
		Password: getEnv("COURSEFORGE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("COURSEFORGE_REDIS_DB", 0),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("COURSEFORGE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("COURSEFORGE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("COURSEFORGE_POSTGRES_URL is required")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
