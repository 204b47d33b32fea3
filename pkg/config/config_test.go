package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huamanraj/project-management-api/pkg/observability"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BILLING_POSTGRES_URL", "postgres://localhost:5432/billing?sslmode=disable")
	t.Setenv("BILLING_GATEWAY_KEY_ID", "rzp_test_key")
	t.Setenv("BILLING_GATEWAY_KEY_SECRET", "secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, "https://api.razorpay.com", cfg.Gateway.BaseURL)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.Equal(t, "@every 1h", cfg.Sweeper.Schedule)
	assert.Equal(t, 24*time.Hour, cfg.Sweeper.StaleTTL)
	assert.Equal(t, 24*time.Hour, cfg.Redis.EventTTL)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestLoadConfigFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BILLING_PORT", "3000")
	t.Setenv("BILLING_SWEEPER_ENABLED", "false")
	t.Setenv("BILLING_SWEEPER_STALE_TTL", "6h")
	t.Setenv("BILLING_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("BILLING_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.False(t, cfg.Sweeper.Enabled)
	assert.Equal(t, 6*time.Hour, cfg.Sweeper.StaleTTL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoadConfigFileOverlay(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "billing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  key_id: rzp_live_key
  key_secret: rotated-secret
  webhook_secret: hook-secret
server:
  port: "9000"
`), 0o600))
	t.Setenv("BILLING_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "rzp_live_key", cfg.Gateway.KeyID)
	assert.Equal(t, "rotated-secret", cfg.Gateway.KeySecret)
	assert.Equal(t, "hook-secret", cfg.Gateway.WebhookSecret)
	assert.Equal(t, "9000", cfg.Server.Port)
	// Values the file does not mention keep their env/default values.
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, "postgres://localhost:5432/billing?sslmode=disable", cfg.Database.URL)
}

func TestLoadConfigMissingFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BILLING_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestMergeFileMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0o600))

	cfg := &Config{}
	assert.Error(t, cfg.MergeFile(path))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
			Database: DatabaseConfig{URL: "postgres://localhost/billing"},
			Gateway:  GatewayConfig{KeyID: "key", KeySecret: "secret"},
			Sweeper:  SweeperConfig{Enabled: true, StaleTTL: time.Hour},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: "server port is required",
		},
		{
			name:    "port collision",
			mutate:  func(c *Config) { c.Server.HealthPort = c.Server.Port },
			wantErr: "must be different",
		},
		{
			name:    "missing postgres URL",
			mutate:  func(c *Config) { c.Database.URL = "" },
			wantErr: "postgres URL is required",
		},
		{
			name:    "missing gateway credentials",
			mutate:  func(c *Config) { c.Gateway.KeySecret = "" },
			wantErr: "gateway key id and secret are required",
		},
		{
			name:    "non-positive sweeper TTL",
			mutate:  func(c *Config) { c.Sweeper.StaleTTL = 0 },
			wantErr: "stale TTL must be positive",
		},
		{
			name:   "disabled sweeper skips TTL check",
			mutate: func(c *Config) { c.Sweeper.Enabled = false; c.Sweeper.StaleTTL = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, observability.InfoLevel, ParseLogLevel("info"))
	assert.Equal(t, observability.WarnLevel, ParseLogLevel("WARN"))
	assert.Equal(t, observability.WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, observability.ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, observability.InfoLevel, ParseLogLevel("everything"))
}
