package api

import (
	"context"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/huamanraj/project-management-api/pkg/config"
	"github.com/huamanraj/project-management-api/pkg/httputil"
	"github.com/huamanraj/project-management-api/pkg/observability"
)

// Server is the billing API HTTP server.
type Server struct {
	router *mux.Router
	server *http.Server
	logger *observability.Logger
}

// NewServer assembles the router, middleware chain and HTTP server around
// the payment and webhook handlers.
func NewServer(cfg config.ServerConfig, payments *PaymentHandlers, webhooks *WebhookHandlers,
	logger *observability.Logger, metrics *observability.Metrics) *Server {
	router := mux.NewRouter()

	router.Use(httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.CORSMiddleware(cfg.AllowedOrigins),
		httputil.MaxBytesMiddleware(1<<20),
	))
	if metrics != nil {
		router.Use(metricsMiddleware(metrics))
	}

	v1 := router.PathPrefix("/api/v1").Subrouter()
	payments.RegisterRoutes(v1)
	webhooks.RegisterRoutes(v1)

	return &Server{
		router: router,
		logger: logger,
		server: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// metricsMiddleware records request counts and latency per route template,
// so path parameters do not explode label cardinality.
func metricsMiddleware(metrics *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}
			metrics.InstrumentHandler(path, next).ServeHTTP(w, r)
		})
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving; it blocks until the server stops.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("API server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// HTTPServer exposes the underlying http.Server for shutdown management.
func (s *Server) HTTPServer() *http.Server {
	return s.server
}
