package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the billing engine
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Order lifecycle metrics
	OrdersCreatedTotal     *prometheus.CounterVec
	VerificationsTotal     *prometheus.CounterVec
	TransitionsTotal       *prometheus.CounterVec
	StaleOrdersSweptTotal  prometheus.Counter

	// Webhook metrics
	WebhookEventsTotal     *prometheus.CounterVec
	WebhookDuplicatesTotal prometheus.Counter

	// Gateway metrics
	GatewayCallDuration *prometheus.HistogramVec
	GatewayErrorsTotal  prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		OrdersCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_orders_created_total",
				Help: "Total number of payment orders created",
			},
			[]string{"plan"},
		),
		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_verifications_total",
				Help: "Total number of payment verification attempts",
			},
			[]string{"outcome"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_order_transitions_total",
				Help: "Total number of order status transitions",
			},
			[]string{"to", "source"},
		),
		StaleOrdersSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_stale_orders_swept_total",
				Help: "Total number of stale pending orders cancelled by the sweeper",
			},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_total",
				Help: "Total number of gateway webhook events received",
			},
			[]string{"event", "result"},
		),
		WebhookDuplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_webhook_duplicates_total",
				Help: "Total number of duplicate webhook deliveries short-circuited",
			},
		),
		GatewayCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_gateway_call_duration_seconds",
				Help:    "Payment gateway call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		GatewayErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_gateway_errors_total",
				Help: "Total number of payment gateway call failures",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OrdersCreatedTotal,
		m.VerificationsTotal,
		m.TransitionsTotal,
		m.StaleOrdersSweptTotal,
		m.WebhookEventsTotal,
		m.WebhookDuplicatesTotal,
		m.GatewayCallDuration,
		m.GatewayErrorsTotal,
	)
	return m
}

// Handler returns the Prometheus scrape handler for a registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an http.Handler with request count and duration metrics
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
