package billing

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/huamanraj/project-management-api/pkg/observability"
	"github.com/huamanraj/project-management-api/pkg/users"
)

// Webhook event names emitted by the gateway that this service understands.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// webhookEnvelope is the outer shape of a gateway webhook delivery.
type webhookEnvelope struct {
	Event   string `json:"event"`
	EventID string `json:"id"`
	Payload struct {
		Payment struct {
			Entity webhookPayment `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type webhookPayment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	ErrorDescription string `json:"error_description"`
}

// orderID returns the gateway order id the event refers to, preferring the
// payment entity and falling back to the order entity.
func (e *webhookEnvelope) orderID() string {
	if e.Payload.Payment.Entity.OrderID != "" {
		return e.Payload.Payment.Entity.OrderID
	}
	return e.Payload.Order.Entity.ID
}

// EventDeduper short-circuits replayed webhook deliveries. MarkSeen reports
// true when eventID has not been observed before.
type EventDeduper interface {
	MarkSeen(ctx context.Context, eventID string) (bool, error)
}

// WebhookService reconciles asynchronous gateway notifications against the
// order store. It never fails a delivery: verification failures and unknown
// events are acknowledged with Processed false so the gateway does not enter
// a retry storm, and internal errors are logged rather than surfaced.
type WebhookService struct {
	store   Store
	users   users.Service
	deduper EventDeduper
	logger  *observability.Logger
	metrics *observability.Metrics

	mu     sync.RWMutex
	secret string
}

// NewWebhookService creates a webhook reconciliation service. secret is the
// shared webhook signing secret; deduper may be nil when replay suppression
// is not configured.
func NewWebhookService(store Store, userSvc users.Service, secret string, deduper EventDeduper,
	logger *observability.Logger, metrics *observability.Metrics) *WebhookService {
	return &WebhookService{
		store:   store,
		users:   userSvc,
		secret:  secret,
		deduper: deduper,
		logger:  logger,
		metrics: metrics,
	}
}

// UpdateSecret swaps the webhook signing secret at runtime.
func (s *WebhookService) UpdateSecret(secret string) {
	s.mu.Lock()
	s.secret = secret
	s.mu.Unlock()
}

func (s *WebhookService) signingSecret() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secret
}

// HandleEvent processes one raw webhook delivery. body is the unmodified
// request body; signature is the gateway's HMAC header value. The returned
// result is always success-shaped.
func (s *WebhookService) HandleEvent(ctx context.Context, body []byte, signature string) *WebhookResult {
	if !VerifyWebhookBody(body, signature, s.signingSecret()) {
		s.metrics.WebhookEventsTotal.WithLabelValues("unknown", "bad_signature").Inc()
		s.logger.Warn("Webhook delivery rejected: signature verification failed")
		return &WebhookResult{Processed: false}
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		s.logger.WithError(err).Warn("Webhook delivery rejected: malformed body")
		return &WebhookResult{Processed: false}
	}

	result := &WebhookResult{Event: env.Event, GatewayOrderID: env.orderID()}

	if env.EventID != "" && s.deduper != nil {
		fresh, err := s.deduper.MarkSeen(ctx, env.EventID)
		if err != nil {
			// Dedupe is an optimization; the CAS on the order row is the
			// real idempotency guard. Proceed on cache failure.
			s.logger.WithError(err).WithField("event_id", env.EventID).
				Warn("Webhook dedupe check failed, processing anyway")
		} else if !fresh {
			s.metrics.WebhookDuplicatesTotal.Inc()
			result.Processed = true
			return result
		}
	}

	switch env.Event {
	case EventPaymentCaptured:
		result.Processed = s.handleCaptured(ctx, &env)
	case EventPaymentFailed:
		result.Processed = s.handleFailed(ctx, &env)
	case EventOrderPaid:
		result.Processed = s.handleOrderPaid(ctx, &env)
	default:
		s.metrics.WebhookEventsTotal.WithLabelValues("unknown", "ignored").Inc()
		s.logger.WithField("event", env.Event).Info("Ignoring unrecognized webhook event")
		result.Processed = false
		return result
	}

	s.metrics.WebhookEventsTotal.WithLabelValues(env.Event, outcomeLabel(result.Processed)).Inc()
	return result
}

func outcomeLabel(processed bool) string {
	if processed {
		return "processed"
	}
	return "skipped"
}

// handleCaptured confirms a payment: the order transitions to completed and
// the user's premium flag is flipped. Deliveries for unknown orders and
// deliveries that lose the race to client verification are benign.
func (s *WebhookService) handleCaptured(ctx context.Context, env *webhookEnvelope) bool {
	orderID := env.orderID()
	payment := env.Payload.Payment.Entity

	order, transitioned, err := s.store.MarkCompleted(ctx, orderID, payment.ID, "")
	if err != nil {
		if IsNotFound(err) {
			// No matching record; likely an order minted outside this service.
			s.logger.WithField("gateway_order_id", orderID).
				Info("Webhook capture for unknown order, ignoring")
			return true
		}
		s.logger.WithError(err).WithField("gateway_order_id", orderID).
			Error("Webhook capture processing failed")
		return false
	}
	if !transitioned {
		// Already terminal. For a completed order re-assert the idempotent
		// premium flip so a flip that failed after the transition is retried
		// on redelivery; anything else stays as it is.
		if order.Status == PaymentStatusCompleted {
			if err := s.users.SetPremium(ctx, order.UserID, true); err != nil {
				s.logger.WithError(err).WithField("user_id", order.UserID).
					Error("Failed to activate premium from webhook capture")
				return false
			}
		}
		return true
	}

	s.metrics.TransitionsTotal.WithLabelValues(string(PaymentStatusCompleted), "webhook").Inc()
	if err := s.users.SetPremium(ctx, order.UserID, true); err != nil {
		s.logger.WithError(err).WithField("user_id", order.UserID).
			Error("Failed to activate premium from webhook capture")
		return false
	}
	s.logger.WithFields(map[string]interface{}{
		"user_id":          order.UserID,
		"gateway_order_id": orderID,
	}).Info("Payment captured via webhook, premium activated")
	return true
}

// handleFailed records a gateway-reported payment failure.
func (s *WebhookService) handleFailed(ctx context.Context, env *webhookEnvelope) bool {
	orderID := env.orderID()
	reason := env.Payload.Payment.Entity.ErrorDescription
	if reason == "" {
		reason = "Payment failed at gateway"
	}

	_, transitioned, err := s.store.MarkFailed(ctx, orderID, reason)
	if err != nil {
		if IsNotFound(err) {
			s.logger.WithField("gateway_order_id", orderID).
				Info("Webhook failure for unknown order, ignoring")
			return true
		}
		s.logger.WithError(err).WithField("gateway_order_id", orderID).
			Error("Webhook failure processing failed")
		return false
	}
	if transitioned {
		s.metrics.TransitionsTotal.WithLabelValues(string(PaymentStatusFailed), "webhook").Inc()
		s.logger.WithFields(map[string]interface{}{
			"gateway_order_id": orderID,
			"reason":           reason,
		}).Info("Payment marked failed via webhook")
	}
	return true
}

// handleOrderPaid is bookkeeping only: the event id is recorded on the
// matching order without any status transition.
func (s *WebhookService) handleOrderPaid(ctx context.Context, env *webhookEnvelope) bool {
	orderID := env.orderID()
	if orderID == "" {
		return false
	}
	note := env.EventID
	if note == "" {
		note = "order.paid"
	}
	if err := s.store.AppendNote(ctx, orderID, "order_paid_event", note); err != nil {
		if IsNotFound(err) {
			return true
		}
		s.logger.WithError(err).WithField("gateway_order_id", orderID).
			Error("Failed to record order.paid event")
		return false
	}
	return true
}
