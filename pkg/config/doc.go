// Package config provides application configuration from environment
// variables with an optional YAML overlay file.
//
// # Overview
//
// This package loads and validates configuration from BILLING_* environment
// variables with sensible defaults, then overlays values from the YAML file
// named by BILLING_CONFIG_FILE when set. The overlay exists so gateway
// credentials can live in a mounted secret file and rotate without a
// restart; Watcher reloads the file when it changes on disk.
//
// # Configuration Structure
//
// Server settings:
//
//	BILLING_HOST="0.0.0.0"
//	BILLING_PORT="8080"
//	BILLING_HEALTH_PORT="9090"
//	BILLING_READ_TIMEOUT="15s"
//	BILLING_WRITE_TIMEOUT="15s"
//	BILLING_ALLOWED_ORIGINS="*"
//
// Storage settings:
//
//	BILLING_POSTGRES_URL="postgres://localhost/billing"
//	BILLING_POSTGRES_MAX_CONNS="25"
//	BILLING_REDIS_URL="redis://localhost:6379"
//	BILLING_REDIS_EVENT_TTL="24h"
//
// Gateway settings:
//
//	BILLING_GATEWAY_URL="https://api.razorpay.com"
//	BILLING_GATEWAY_KEY_ID="rzp_live_..."
//	BILLING_GATEWAY_KEY_SECRET="..."
//	BILLING_GATEWAY_WEBHOOK_SECRET="..."
//
// Sweeper settings:
//
//	BILLING_SWEEPER_ENABLED="true"
//	BILLING_SWEEPER_SCHEDULE="@every 1h"
//	BILLING_SWEEPER_STALE_TTL="24h"
//
// Observability settings:
//
//	BILLING_LOG_LEVEL="info"  # debug, info, warn, error
//	BILLING_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Gateway: %s\n", cfg.Gateway.BaseURL)
//
// # Related Packages
//
//   - pkg/storage/postgres: Uses database and Redis configuration
//   - pkg/billing: Uses gateway and sweeper configuration
//   - pkg/observability: Uses observability configuration
package config
