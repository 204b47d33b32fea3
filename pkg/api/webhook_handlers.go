package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/huamanraj/project-management-api/pkg/billing"
	"github.com/huamanraj/project-management-api/pkg/httputil"
	"github.com/huamanraj/project-management-api/pkg/observability"
)

// SignatureHeader carries the gateway's HMAC over the raw webhook body.
const SignatureHeader = "X-Gateway-Signature"

// maxWebhookBody bounds webhook payload size.
const maxWebhookBody = 1 << 20

// WebhookHandlers handles inbound payment gateway webhooks
type WebhookHandlers struct {
	service *billing.WebhookService
	logger  *observability.Logger
}

// NewWebhookHandlers creates a new WebhookHandlers
func NewWebhookHandlers(service *billing.WebhookService, logger *observability.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks/payment", h.HandleWebhook).Methods("POST")
}

// HandleWebhook processes a gateway webhook delivery. The response is
// always 200 with a success-shaped body so the gateway does not retry
// deliveries we have chosen to skip; only an unreadable body is rejected.
func (h *WebhookHandlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.WithError(err).Warn("Failed to read webhook body")
		httputil.WriteBadRequest(w, "unreadable body")
		return
	}

	result := h.service.HandleEvent(r.Context(), body, r.Header.Get(SignatureHeader))
	httputil.WriteSuccess(w, result)
}
