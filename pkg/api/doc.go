// Package api provides the HTTP REST API server for the premium billing
// service.
//
// # Overview
//
// This package implements the HTTP layer over the billing domain. It exposes
// plan discovery, order creation, payment verification, failure reporting,
// cancellation, history, statistics, and the payment gateway webhook
// receiver.
//
// # Architecture
//
// The API is built on gorilla/mux and split into two handler groups:
//
//   - PaymentHandlers: client-facing payment order endpoints under
//     /api/v1/payments, authenticated by the X-User-ID header set by the
//     fronting auth proxy
//   - WebhookHandlers: the gateway-facing webhook receiver under
//     /api/v1/webhooks, authenticated by the X-Gateway-Signature HMAC header
//
// # Key Types
//
// Server assembles the router, the shared middleware chain (request ids,
// logging, panic recovery, CORS, body limits, metrics), and the http.Server:
//
//	server := api.NewServer(cfg.Server, payments, webhooks, logger, metrics)
//	err := server.Start()
//
// # Error Mapping
//
// Handlers translate the billing error taxonomy onto HTTP statuses: invalid
// input and failed verification map to 400, unknown users and orders to 404,
// duplicate orders and already-premium users to 409, and gateway outages
// to 502. Verification is the one exception to the 404 rule: a proof naming
// an order this service never created is rejected with 400. Webhook deliveries are the exception: the receiver always replies
// 200 so the gateway does not retry events the service chose to skip.
//
// # Related Packages
//
//   - pkg/billing: the domain service, verification, and webhook processing
//   - pkg/httputil: request parsing, response writing, middleware
//   - pkg/observability: logging, metrics, health, shutdown
package api
