package config

import (
	"os"
	"testing"
	"time"

	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"true string", "true", false, true},
		{"one string", "1", false, true},
		{"false string", "false", true, false},
		{"unset uses default", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
				defer os.Unsetenv(key)
			}

			got := getEnvBool(key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	os.Setenv("SHIFTDECK_POSTGRES_URL", "postgres://localhost/shiftdeck_test")
	defer os.Unsetenv("SHIFTDECK_POSTGRES_URL")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("expected default token TTL 24h, got %s", cfg.Auth.TokenTTL)
	}
	if cfg.RateLimit.UserLimit != 300 || cfg.RateLimit.AnonymousLimit != 60 {
		t.Errorf("unexpected default rate limits: %+v", cfg.RateLimit)
	}
	if cfg.Redis.Enabled() {
		t.Error("redis should be disabled by default")
	}
	if cfg.Observability.LogLevel != observability.InfoLevel {
		t.Errorf("expected info log level, got %s", cfg.Observability.LogLevel)
	}
	if cfg.SSO.Enabled {
		t.Error("SSO should be disabled by default")
	}
}

func TestLoadConfigRequiresDatabase(t *testing.T) {
	os.Unsetenv("SHIFTDECK_POSTGRES_URL")
	if _, err := LoadConfig(); err == nil {
		t.Error("expected error without postgres URL")
	}
}

func TestValidateSSO(t *testing.T) {
	os.Setenv("SHIFTDECK_POSTGRES_URL", "postgres://localhost/shiftdeck_test")
	os.Setenv("SHIFTDECK_SSO_ENABLED", "true")
	defer os.Unsetenv("SHIFTDECK_POSTGRES_URL")
	defer os.Unsetenv("SHIFTDECK_SSO_ENABLED")

	if _, err := LoadConfig(); err == nil {
		t.Error("enabled SSO without issuer must fail validation")
	}

	os.Setenv("SHIFTDECK_SSO_ISSUER_URL", "https://idp.example.com")
	os.Setenv("SHIFTDECK_SSO_CLIENT_ID", "shiftdeck")
	os.Setenv("SHIFTDECK_SSO_CLIENT_SECRET", "secret")
	os.Setenv("SHIFTDECK_SSO_REDIRECT_URL", "https://app.example.com/api/v1/auth/sso/callback")
	defer func() {
		os.Unsetenv("SHIFTDECK_SSO_ISSUER_URL")
		os.Unsetenv("SHIFTDECK_SSO_CLIENT_ID")
		os.Unsetenv("SHIFTDECK_SSO_CLIENT_SECRET")
		os.Unsetenv("SHIFTDECK_SSO_REDIRECT_URL")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.SSO.Enabled || cfg.SSO.IssuerURL != "https://idp.example.com" {
		t.Errorf("unexpected SSO config: %+v", cfg.SSO)
	}
}

func TestReplicaURLList(t *testing.T) {
	cfg := DatabaseConfig{ReplicaURLs: "postgres://r1/db, postgres://r2/db,"}
	urls := cfg.ReplicaURLList()
	if len(urls) != 2 || urls[0] != "postgres://r1/db" || urls[1] != "postgres://r2/db" {
		t.Errorf("unexpected replica URLs: %v", urls)
	}

	if urls := (DatabaseConfig{}).ReplicaURLList(); urls != nil {
		t.Errorf("expected nil for empty replica list, got %v", urls)
	}
}
