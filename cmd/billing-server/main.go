package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/huamanraj/project-management-api/pkg/api"
	"github.com/huamanraj/project-management-api/pkg/billing"
	"github.com/huamanraj/project-management-api/pkg/config"
	"github.com/huamanraj/project-management-api/pkg/observability"
	"github.com/huamanraj/project-management-api/pkg/storage/postgres"
	"github.com/huamanraj/project-management-api/pkg/users"
)

func main() {
	boot := logrus.New()
	boot.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(config.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)

	db, err := postgres.Connect(postgres.ConnectionConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
		Timeout:  cfg.Database.Timeout,
	})
	if err != nil {
		boot.Fatalf("Failed to connect to database: %v", err)
	}

	store := billing.NewPostgresStore(db)
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.Migrate(migrateCtx)
	cancelMigrate()
	if err != nil {
		boot.Fatalf("Failed to run migrations: %v", err)
	}

	var redisClient *redis.Client
	var deduper billing.EventDeduper
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			boot.Fatalf("Failed to connect to redis: %v", err)
		}
		deduper = postgres.NewEventCache(redisClient, cfg.Redis.EventTTL)
	} else {
		logger.Warn("Redis not configured, webhook replay suppression disabled")
	}

	userSvc := users.NewPostgresService(db)
	gateway := billing.NewHTTPGateway(billing.HTTPGatewayConfig{
		BaseURL:   cfg.Gateway.BaseURL,
		KeyID:     cfg.Gateway.KeyID,
		KeySecret: cfg.Gateway.KeySecret,
		Timeout:   cfg.Gateway.Timeout,
	})
	verifier := billing.NewSignatureVerifier(cfg.Gateway.KeySecret)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	catalog := billing.DefaultPlanCatalog()
	service := billing.NewService(catalog, store, gateway, userSvc, verifier, logger, metrics)
	webhookSvc := billing.NewWebhookService(store, userSvc, cfg.Gateway.WebhookSecret, deduper,
		logger.WithComponent("webhook"), metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Credential rotation: rewriting the config file swaps gateway keys
	// without a restart.
	if path := os.Getenv("BILLING_CONFIG_FILE"); path != "" {
		watcher, err := config.NewWatcher(path, cfg, func(next *config.Config) {
			gateway.UpdateCredentials(next.Gateway.KeyID, next.Gateway.KeySecret)
			verifier.UpdateSecret(next.Gateway.KeySecret)
			webhookSvc.UpdateSecret(next.Gateway.WebhookSecret)
		}, logger.WithComponent("config"))
		if err != nil {
			boot.Fatalf("Failed to watch config file: %v", err)
		}
		go watcher.Run(ctx)
	}

	var sweeper *billing.Sweeper
	if cfg.Sweeper.Enabled {
		sweeper = billing.NewSweeper(store, cfg.Sweeper.StaleTTL, logger.WithComponent("sweeper"), metrics)
		if err := sweeper.Start(cfg.Sweeper.Schedule); err != nil {
			boot.Fatalf("Failed to start stale order sweeper: %v", err)
		}
	}

	payments := api.NewPaymentHandlers(service, logger)
	webhooks := api.NewWebhookHandlers(webhookSvc, logger)
	server := api.NewServer(cfg.Server, payments, webhooks, logger, metrics)
	healthServer := buildHealthServer(cfg, db, redisClient, registry, payments)

	shutdown := observability.NewShutdownManager(logger, server.HTTPServer(), cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		if sweeper != nil {
			sweeper.Stop()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				return err
			}
		}
		return db.Close()
	})

	g, _ := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(shutdown.WaitForShutdown)

	if err := g.Wait(); err != nil {
		boot.Fatalf("Server error: %v", err)
	}
}

func buildHealthServer(cfg *config.Config, db *sql.DB, redisClient *redis.Client,
	registry *prometheus.Registry, payments *api.PaymentHandlers) *http.Server {
	mux := http.NewServeMux()
	checker := observability.NewHealthChecker(db, redisClient)
	mux.HandleFunc("/healthz", checker.Liveness)
	mux.HandleFunc("/readyz", checker.Readiness)
	// All-users billing aggregates stay off the public API; the internal
	// listener is reachable only inside the deployment.
	mux.HandleFunc("/billing/stats", payments.GlobalStats)
	if cfg.Observability.MetricsEnabled {
		mux.Handle("/metrics", observability.Handler(registry))
	}
	return &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: mux,
	}
}
