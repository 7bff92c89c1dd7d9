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
	"github.com/robfig/cron/v3"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetDatabaseMaxConns() int32
	IsMigrationsEnabled() bool
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// SchedulerConfig provides the Redis and asynq settings shared by the
// scheduler client, worker and the Redis-backed follow-up tracker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetMetricsAddr() string
}

// WhatsAppConfig provides settings for the gowa WhatsApp gateway.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
	GetWhatsAppRatePerSecond() float64
}

// FollowupConfig provides settings for the follow-up orchestration cycle.
type FollowupConfig interface {
	GetFollowupCycleSpec() string
	GetFollowupTick() time.Duration
	GetFollowupWorkers() int
	GetFollowupTracker() string
	GetFollowupCounterRetention() time.Duration
}

// AIConfig provides settings for the AI message composer.
type AIConfig interface {
	GetMoonshotAPIKey() string
	IsAIComposerEnabled() bool
}

// PhoneConfig provides phone normalization settings.
type PhoneConfig interface {
	GetPhoneDefaultRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	DatabaseURL           string
	DatabaseMaxConns      int32
	MigrationsEnabled     bool
	CORSAllowAll          bool
	CORSOrigins           []string
	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	AsynqConcurrency      int
	MetricsAddr           string
	WhatsAppURL           string
	WhatsAppKey           string
	WhatsAppDeviceID      string
	WhatsAppRatePerSecond float64
	MoonshotAPIKey        string
	FollowupCycleSpec     string
	FollowupTick          time.Duration
	FollowupWorkers       int
	FollowupTracker       string
	FollowupRetention     time.Duration
	PhoneDefaultRegion    string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int32 { return c.DatabaseMaxConns }
func (c *Config) IsMigrationsEnabled() bool  { return c.MigrationsEnabled }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetMetricsAddr() string    { return c.MetricsAddr }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string            { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string            { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string       { return c.WhatsAppDeviceID }
func (c *Config) GetWhatsAppRatePerSecond() float64 { return c.WhatsAppRatePerSecond }

// FollowupConfig implementation
func (c *Config) GetFollowupCycleSpec() string   { return c.FollowupCycleSpec }
func (c *Config) GetFollowupTick() time.Duration { return c.FollowupTick }
func (c *Config) GetFollowupWorkers() int        { return c.FollowupWorkers }
func (c *Config) GetFollowupTracker() string     { return c.FollowupTracker }
func (c *Config) GetFollowupCounterRetention() time.Duration {
	return c.FollowupRetention
}

// AIConfig implementation
func (c *Config) GetMoonshotAPIKey() string { return c.MoonshotAPIKey }
func (c *Config) IsAIComposerEnabled() bool { return c.MoonshotAPIKey != "" }

// PhoneConfig implementation
func (c *Config) GetPhoneDefaultRegion() string { return c.PhoneDefaultRegion }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:      int32(mustInt(getEnv("DB_MAX_CONNS", "25"))),
		MigrationsEnabled:     strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		CORSAllowAll:          containsWildcard(corsOrigins),
		CORSOrigins:           corsOrigins,
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "followups"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		MetricsAddr:           getEnv("SCHEDULER_METRICS_ADDR", ":9091"),
		WhatsAppURL:           getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:           getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:      getEnv("WHATSAPP_DEVICE_ID", ""),
		WhatsAppRatePerSecond: mustFloat(getEnv("WHATSAPP_RATE_PER_SECOND", "1")),
		MoonshotAPIKey:        getEnv("MOONSHOT_API_KEY", ""),
		FollowupCycleSpec:     getEnv("FOLLOWUP_CYCLE_SPEC", "@every 5m"),
		FollowupTick:          mustDuration(getEnv("FOLLOWUP_TICK", "5m")),
		FollowupWorkers:       mustInt(getEnv("FOLLOWUP_WORKERS", "8")),
		FollowupTracker:       strings.ToLower(getEnv("FOLLOWUP_TRACKER", "redis")),
		FollowupRetention:     mustDuration(getEnv("FOLLOWUP_COUNTER_RETENTION", "2160h")),
		PhoneDefaultRegion:    strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "BR")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DatabaseMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1")
	}
	if c.FollowupTick <= 0 {
		return fmt.Errorf("FOLLOWUP_TICK must be a positive duration")
	}
	if c.FollowupWorkers < 1 {
		return fmt.Errorf("FOLLOWUP_WORKERS must be at least 1")
	}
	if c.FollowupRetention <= 0 {
		return fmt.Errorf("FOLLOWUP_COUNTER_RETENTION must be a positive duration")
	}
	if c.FollowupTracker != "redis" && c.FollowupTracker != "postgres" {
		return fmt.Errorf("FOLLOWUP_TRACKER must be redis or postgres")
	}
	if err := ValidateCycleSpec(c.FollowupCycleSpec); err != nil {
		return err
	}
	return nil
}

// ValidateCycleSpec checks that spec is a cron expression or descriptor
// accepted by the asynq scheduler.
func ValidateCycleSpec(spec string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("FOLLOWUP_CYCLE_SPEC %q is invalid: %w", spec, err)
	}
	return nil
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
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
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
