// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig
	Audit    AuditConfig
	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	MetricsPort     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
	Timeout  time.Duration
}

// RedisConfig holds the session store configuration
type RedisConfig struct {
	URL        string
	SessionTTL time.Duration
}

// AIConfig holds text generation provider configuration
type AIConfig struct {
	Provider      string
	GeminiAPIKey  string
	GeminiModel   string
	Timeout       time.Duration
	ForceFallback bool
}

// AuditConfig holds audit log retention configuration
type AuditConfig struct {
	RetentionDays   int
	CleanupSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("WORKBENCH_HOST", "0.0.0.0"),
			Port:            getEnv("WORKBENCH_PORT", "8080"),
			MetricsPort:     getEnv("WORKBENCH_METRICS_PORT", "9090"),
			ReadTimeout:     getEnvDuration("WORKBENCH_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("WORKBENCH_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("WORKBENCH_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("WORKBENCH_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:      getEnv("WORKBENCH_POSTGRES_URL", ""),
			MaxConns: getEnvInt("WORKBENCH_POSTGRES_MAX_CONNS", 25),
			MinConns: getEnvInt("WORKBENCH_POSTGRES_MIN_CONNS", 5),
			Timeout:  getEnvDuration("WORKBENCH_POSTGRES_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:        getEnv("WORKBENCH_REDIS_URL", "redis://localhost:6379/0"),
			SessionTTL: getEnvDuration("WORKBENCH_SESSION_TTL", 30*24*time.Hour),
		},
		AI: AIConfig{
			Provider:      strings.ToLower(getEnv("WORKBENCH_AI_PROVIDER", "gemini")),
			GeminiAPIKey:  getEnv("WORKBENCH_GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("WORKBENCH_GEMINI_MODEL", "gemini-1.5-flash"),
			Timeout:       getEnvDuration("WORKBENCH_AI_TIMEOUT", 30*time.Second),
			ForceFallback: getEnvBool("WORKBENCH_AI_FORCE_FALLBACK", false),
		},
		Audit: AuditConfig{
			RetentionDays:   getEnvInt("WORKBENCH_AUDIT_RETENTION_DAYS", 365),
			CleanupSchedule: getEnv("WORKBENCH_AUDIT_CLEANUP_SCHEDULE", "0 3 * * *"),
		},
		LogLevel: getEnv("WORKBENCH_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.Port == c.Server.MetricsPort {
		return fmt.Errorf("server port and metrics port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.AI.Provider != "gemini" {
		return fmt.Errorf("unsupported AI provider: %s", c.AI.Provider)
	}
	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention days must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
