// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// ExtractionConfig provides settings for the document extraction service.
type ExtractionConfig interface {
	GetGeminiAPIKey() string
	GetExtractionModel() string
	GetExtractionTimeout() time.Duration
	IsExtractionEnabled() bool
}

// DispatchConfig provides settings for outbound webhook delivery.
type DispatchConfig interface {
	GetDispatchTimeout() time.Duration
	GetDispatchConcurrency() int
}

// QueueConfig provides settings for the asynq-backed reconciliation queue.
type QueueConfig interface {
	GetRedisURL() string
	GetQueueName() string
	GetQueueConcurrency() int
	IsQueueEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	HTTPAddr            string
	DatabaseURL         string
	CORSAllowAll        bool
	CORSOrigins         []string
	CORSAllowCreds      bool
	GeminiAPIKey        string
	ExtractionModel     string
	ExtractionTimeout   time.Duration
	DispatchTimeout     time.Duration
	DispatchConcurrency int
	RedisURL            string
	QueueName           string
	QueueConcurrency    int
}

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// ExtractionConfig implementation
func (c *Config) GetGeminiAPIKey() string             { return c.GeminiAPIKey }
func (c *Config) GetExtractionModel() string          { return c.ExtractionModel }
func (c *Config) GetExtractionTimeout() time.Duration { return c.ExtractionTimeout }
func (c *Config) IsExtractionEnabled() bool           { return c.GeminiAPIKey != "" }

// DispatchConfig implementation
func (c *Config) GetDispatchTimeout() time.Duration { return c.DispatchTimeout }
func (c *Config) GetDispatchConcurrency() int       { return c.DispatchConcurrency }

// QueueConfig implementation
func (c *Config) GetRedisURL() string      { return c.RedisURL }
func (c *Config) GetQueueName() string     { return c.QueueName }
func (c *Config) GetQueueConcurrency() int { return c.QueueConcurrency }
func (c *Config) IsQueueEnabled() bool     { return c.RedisURL != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		CORSAllowAll:        corsAllowAll,
		CORSOrigins:         corsOrigins,
		CORSAllowCreds:      strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		ExtractionModel:     getEnv("EXTRACTION_MODEL", "gemini-2.0-flash"),
		ExtractionTimeout:   mustDuration(getEnv("EXTRACTION_TIMEOUT", "90s")),
		DispatchTimeout:     mustDuration(getEnv("DISPATCH_TIMEOUT", "10s")),
		DispatchConcurrency: mustInt(getEnv("DISPATCH_CONCURRENCY", "4")),
		RedisURL:            getEnv("REDIS_URL", ""),
		QueueName:           getEnv("QUEUE_NAME", "reconcile"),
		QueueConcurrency:    mustInt(getEnv("QUEUE_CONCURRENCY", "5")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ExtractionTimeout <= 0 {
		return nil, fmt.Errorf("EXTRACTION_TIMEOUT must be a positive duration")
	}
	if cfg.DispatchTimeout <= 0 {
		return nil, fmt.Errorf("DISPATCH_TIMEOUT must be a positive duration")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
