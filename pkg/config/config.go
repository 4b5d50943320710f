package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	SSO           SSOConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string
	// ReplicaURLs is a comma-separated list of read replica URLs
	ReplicaURLs  string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis configuration. Redis is optional: without an
// address, rate limiting stays in-process and readiness skips the check.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether Redis is configured
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// AuthConfig holds session token settings
type AuthConfig struct {
	TokenTTL time.Duration
}

// SSOConfig holds OIDC sign-on settings
type SSOConfig struct {
	Enabled       bool
	IssuerURL     string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	Scopes        []string
	AutoProvision bool
	DefaultRole   string
}

// RateLimitConfig holds per-minute request budgets
type RateLimitConfig struct {
	UserLimit      int
	AnonymousLimit int
	MaxBuckets     int
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	RetentionDays int
	// CleanupSchedule is a cron expression for the retention job
	CleanupSchedule string
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SHIFTDECK_HOST", "0.0.0.0"),
			Port:            getEnv("SHIFTDECK_PORT", "8080"),
			ReadTimeout:     getEnvDuration("SHIFTDECK_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SHIFTDECK_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SHIFTDECK_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SHIFTDECK_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:          getEnv("SHIFTDECK_POSTGRES_URL", ""),
			ReplicaURLs:  getEnv("SHIFTDECK_POSTGRES_REPLICA_URLS", ""),
			MaxOpenConns: getEnvInt("SHIFTDECK_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("SHIFTDECK_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("SHIFTDECK_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("SHIFTDECK_REDIS_ADDR", ""),
			Password: getEnv("SHIFTDECK_REDIS_PASSWORD", ""),
			DB:       getEnvInt("SHIFTDECK_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			TokenTTL: getEnvDuration("SHIFTDECK_TOKEN_TTL", 24*time.Hour),
		},
		SSO: SSOConfig{
			Enabled:       getEnvBool("SHIFTDECK_SSO_ENABLED", false),
			IssuerURL:     getEnv("SHIFTDECK_SSO_ISSUER_URL", ""),
			ClientID:      getEnv("SHIFTDECK_SSO_CLIENT_ID", ""),
			ClientSecret:  getEnv("SHIFTDECK_SSO_CLIENT_SECRET", ""),
			RedirectURL:   getEnv("SHIFTDECK_SSO_REDIRECT_URL", ""),
			Scopes:        getEnvList("SHIFTDECK_SSO_SCOPES", []string{"openid", "profile", "email"}),
			AutoProvision: getEnvBool("SHIFTDECK_SSO_AUTO_PROVISION", false),
			DefaultRole:   getEnv("SHIFTDECK_SSO_DEFAULT_ROLE", "STAFF"),
		},
		RateLimit: RateLimitConfig{
			UserLimit:      getEnvInt("SHIFTDECK_RATE_LIMIT_USER", 300),
			AnonymousLimit: getEnvInt("SHIFTDECK_RATE_LIMIT_ANONYMOUS", 60),
			MaxBuckets:     getEnvInt("SHIFTDECK_RATE_LIMIT_MAX_BUCKETS", 10000),
		},
		Audit: AuditConfig{
			RetentionDays:   getEnvInt("SHIFTDECK_AUDIT_RETENTION_DAYS", 365),
			CleanupSchedule: getEnv("SHIFTDECK_AUDIT_CLEANUP_SCHEDULE", "0 3 * * *"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("SHIFTDECK_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("SHIFTDECK_METRICS_ENABLED", true),
		},
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
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.RateLimit.UserLimit <= 0 || c.RateLimit.AnonymousLimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention must be positive")
	}
	if c.SSO.Enabled {
		if c.SSO.IssuerURL == "" {
			return fmt.Errorf("SSO issuer URL is required when SSO is enabled")
		}
		if c.SSO.ClientID == "" || c.SSO.ClientSecret == "" {
			return fmt.Errorf("SSO client credentials are required when SSO is enabled")
		}
		if c.SSO.RedirectURL == "" {
			return fmt.Errorf("SSO redirect URL is required when SSO is enabled")
		}
	}
	return nil
}

// ReplicaURLList splits the comma-separated replica URLs
func (c DatabaseConfig) ReplicaURLList() []string {
	if c.ReplicaURLs == "" {
		return nil
	}
	var urls []string
	for _, u := range strings.Split(c.ReplicaURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
