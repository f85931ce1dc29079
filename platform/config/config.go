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

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EscalationConfig provides the no-show and escalation ladder timing constants.
type EscalationConfig interface {
	GetConfirmTimeout() time.Duration
	GetRemindPrimaryAfter() time.Duration
	GetSwitchBackupAfter() time.Duration
	GetEmergencyRequestAfter() time.Duration
	GetHostManualAfter() time.Duration
	GetSweepInterval() time.Duration
}

// ReconcilerConfig provides settings for the booking reconciler.
type ReconcilerConfig interface {
	GetDefaultCleaningDuration() time.Duration
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// EmailConfig provides settings for outbox email delivery.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetOpsInboxAddress() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env         string
	HTTPAddr    string
	DatabaseURL string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	ConfirmTimeout          time.Duration
	RemindPrimaryAfter      time.Duration
	SwitchBackupAfter       time.Duration
	EmergencyRequestAfter   time.Duration
	HostManualAfter         time.Duration
	SweepInterval           time.Duration
	DefaultCleaningDuration time.Duration

	CORSAllowAll bool
	CORSOrigins  []string

	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string
	OpsInboxAddress  string
}

// Load reads configuration from environment variables.
// A .env file is loaded first when present (development convenience).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisURL:         os.Getenv("REDIS_URL"),
		RedisTLSInsecure: getBoolEnv("REDIS_TLS_INSECURE", false),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: getIntEnv("ASYNQ_CONCURRENCY", 10),

		ConfirmTimeout:          getMinutesEnv("CONFIRM_TIMEOUT_MINUTES", 30),
		RemindPrimaryAfter:      getMinutesEnv("LADDER_REMIND_PRIMARY_MINUTES", 10),
		SwitchBackupAfter:       getMinutesEnv("LADDER_SWITCH_BACKUP_MINUTES", 20),
		EmergencyRequestAfter:   getMinutesEnv("LADDER_EMERGENCY_REQUEST_MINUTES", 40),
		HostManualAfter:         getMinutesEnv("LADDER_HOST_MANUAL_MINUTES", 60),
		SweepInterval:           getMinutesEnv("SWEEP_INTERVAL_MINUTES", 5),
		DefaultCleaningDuration: getMinutesEnv("DEFAULT_CLEANING_DURATION_MINUTES", 90),

		CORSAllowAll: getBoolEnv("CORS_ALLOW_ALL", false),
		CORSOrigins:  getListEnv("CORS_ORIGINS"),

		EmailEnabled:     getBoolEnv("EMAIL_ENABLED", false),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         getIntEnv("SMTP_PORT", 587),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "CleanOps"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@cleanops.local"),
		OpsInboxAddress:  getEnv("OPS_INBOX_ADDRESS", "ops@cleanops.local"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetConfirmTimeout() time.Duration        { return c.ConfirmTimeout }
func (c *Config) GetRemindPrimaryAfter() time.Duration    { return c.RemindPrimaryAfter }
func (c *Config) GetSwitchBackupAfter() time.Duration     { return c.SwitchBackupAfter }
func (c *Config) GetEmergencyRequestAfter() time.Duration { return c.EmergencyRequestAfter }
func (c *Config) GetHostManualAfter() time.Duration       { return c.HostManualAfter }
func (c *Config) GetSweepInterval() time.Duration         { return c.SweepInterval }

func (c *Config) GetDefaultCleaningDuration() time.Duration { return c.DefaultCleaningDuration }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetOpsInboxAddress() string  { return c.OpsInboxAddress }

// =============================================================================
// Env Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getMinutesEnv(key string, fallbackMinutes int) time.Duration {
	minutes := getIntEnv(key, fallbackMinutes)
	if minutes <= 0 {
		minutes = fallbackMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func getBoolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
