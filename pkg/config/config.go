package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/huamanraj/project-management-api/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration
	Redis RedisConfig `yaml:"redis"`

	// Payment gateway configuration
	Gateway GatewayConfig `yaml:"gateway"`

	// Stale order sweeper configuration
	Sweeper SweeperConfig `yaml:"sweeper"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL      string        `yaml:"url"`
	MaxConns int           `yaml:"max_conns"`
	MinConns int           `yaml:"min_conns"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL      string        `yaml:"url"`
	EventTTL time.Duration `yaml:"event_ttl"`
}

// GatewayConfig holds payment gateway credentials and endpoints. KeySecret
// signs payment verification; WebhookSecret authenticates inbound webhook
// deliveries.
type GatewayConfig struct {
	BaseURL       string        `yaml:"base_url"`
	KeyID         string        `yaml:"key_id"`
	KeySecret     string        `yaml:"key_secret"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Timeout       time.Duration `yaml:"timeout"`
}

// SweeperConfig controls the stale pending order sweeper
type SweeperConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Schedule string        `yaml:"schedule"`
	StaleTTL time.Duration `yaml:"stale_ttl"`
}

// ObservabilityConfig holds observability settings. LogLevel stays a string
// so YAML overlays can set it; parse with ParseLogLevel at use.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// LoadConfig loads configuration from environment variables, then overlays
// values from the YAML file named by BILLING_CONFIG_FILE when set.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Gateway:       loadGatewayConfig(),
		Sweeper:       loadSweeperConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path := getEnv("BILLING_CONFIG_FILE", ""); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// MergeFile overlays non-zero values from a YAML file onto the config.
// Credentials are the expected use; rotating them only needs a file update.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("BILLING_HOST", "0.0.0.0"),
		Port:            getEnv("BILLING_PORT", "8080"),
		ReadTimeout:     getEnvDuration("BILLING_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("BILLING_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("BILLING_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("BILLING_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("BILLING_HEALTH_PORT", "9090"),
		AllowedOrigins:  splitNonEmpty(getEnv("BILLING_ALLOWED_ORIGINS", "*")),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:      getEnv("BILLING_POSTGRES_URL", ""),
		MaxConns: getEnvInt("BILLING_POSTGRES_MAX_CONNS", 25),
		MinConns: getEnvInt("BILLING_POSTGRES_MIN_CONNS", 5),
		Timeout:  getEnvDuration("BILLING_POSTGRES_TIMEOUT", 5*time.Second),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("BILLING_REDIS_URL", ""),
		EventTTL: getEnvDuration("BILLING_REDIS_EVENT_TTL", 24*time.Hour),
	}
}

func loadGatewayConfig() GatewayConfig {
	return GatewayConfig{
		BaseURL:       getEnv("BILLING_GATEWAY_URL", "https://api.razorpay.com"),
		KeyID:         getEnv("BILLING_GATEWAY_KEY_ID", ""),
		KeySecret:     getEnv("BILLING_GATEWAY_KEY_SECRET", ""),
		WebhookSecret: getEnv("BILLING_GATEWAY_WEBHOOK_SECRET", ""),
		Timeout:       getEnvDuration("BILLING_GATEWAY_TIMEOUT", 10*time.Second),
	}
}

func loadSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Enabled:  getEnvBool("BILLING_SWEEPER_ENABLED", true),
		Schedule: getEnv("BILLING_SWEEPER_SCHEDULE", "@every 1h"),
		StaleTTL: getEnvDuration("BILLING_SWEEPER_STALE_TTL", 24*time.Hour),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("BILLING_LOG_LEVEL", "info"),
		MetricsEnabled: getEnvBool("BILLING_METRICS_ENABLED", true),
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
		return fmt.Errorf("postgres URL is required")
	}

	if c.Gateway.KeyID == "" || c.Gateway.KeySecret == "" {
		return fmt.Errorf("gateway key id and secret are required")
	}

	if c.Sweeper.Enabled && c.Sweeper.StaleTTL <= 0 {
		return fmt.Errorf("sweeper stale TTL must be positive")
	}

	return nil
}

// ParseLogLevel parses a log level string
func ParseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

func splitNonEmpty(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
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
