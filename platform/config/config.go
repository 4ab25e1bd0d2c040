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

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// SchedulerConfig provides settings for the background job machinery.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// SweepConfig provides settings for the inactivity sweep loop.
type SweepConfig interface {
	GetSweepInterval() time.Duration
	GetSweepPageSize() int
	GetLifecycleRulesPath() string
}

// StorageConfig provides settings for the MinIO object store.
type StorageConfig interface {
	GetMinioEndpoint() string
	GetMinioAccessKey() string
	GetMinioSecretKey() string
	GetMinioUseSSL() bool
	GetMinioBucketImportFiles() string
}

// EmailConfig provides settings for SMTP notification delivery.
type EmailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// WhatsAppConfig provides settings for the WhatsApp dispatcher.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// CORSConfig provides settings for cross-origin requests.
type CORSConfig interface {
	GetCORSAllowedOrigins() []string
}

// =============================================================================
// Concrete Configuration
// =============================================================================

// Config holds all application configuration, loaded from the environment.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string

	JWTAccessSecret string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	SweepInterval      time.Duration
	SweepPageSize      int
	LifecycleRulesPath string

	MinioEndpoint          string
	MinioAccessKey         string
	MinioSecretKey         string
	MinioUseSSL            bool
	MinioBucketImportFiles string

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string

	WhatsAppURL      string
	WhatsAppKey      string
	WhatsAppDeviceID string

	CORSAllowedOrigins []string
}

// Load reads configuration from the environment, consulting a .env file if
// present. Only the database URL is mandatory; everything else has a default
// or degrades to a disabled integration.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: getBoolEnv("REDIS_TLS_INSECURE", false),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: getIntEnv("ASYNQ_CONCURRENCY", 10),

		SweepInterval:      getDurationEnv("SWEEP_INTERVAL", 4*time.Hour),
		SweepPageSize:      getIntEnv("SWEEP_PAGE_SIZE", 200),
		LifecycleRulesPath: getEnv("LIFECYCLE_RULES_PATH", ""),

		MinioEndpoint:          getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey:         getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:         getEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:            getBoolEnv("MINIO_USE_SSL", false),
		MinioBucketImportFiles: getEnv("MINIO_BUCKET_IMPORT_FILES", "lead-import-files"),

		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getIntEnv("SMTP_PORT", 587),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Lead Engine"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),

		WhatsAppURL:      getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:      getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID: getEnv("WHATSAPP_DEVICE_ID", ""),

		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }
func (c *Config) GetRedisURL() string { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int { return c.AsynqConcurrency }
func (c *Config) GetSweepInterval() time.Duration { return c.SweepInterval }
func (c *Config) GetSweepPageSize() int { return c.SweepPageSize }
func (c *Config) GetLifecycleRulesPath() string { return c.LifecycleRulesPath }
func (c *Config) GetMinioEndpoint() string { return c.MinioEndpoint }
func (c *Config) GetMinioAccessKey() string { return c.MinioAccessKey }
func (c *Config) GetMinioSecretKey() string { return c.MinioSecretKey }
func (c *Config) GetMinioUseSSL() bool { return c.MinioUseSSL }
func (c *Config) GetMinioBucketImportFiles() string { return c.MinioBucketImportFiles }
func (c *Config) GetSMTPHost() string { return c.SMTPHost }
func (c *Config) GetSMTPPort() int { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetWhatsAppURL() string { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }
func (c *Config) GetCORSAllowedOrigins() []string { return c.CORSAllowedOrigins }

// =============================================================================
// Environment Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getBoolEnv(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getListEnv(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
