package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/huamanraj/project-management-api/pkg/observability"
	"github.com/huamanraj/project-management-api/pkg/users"
)

// maxReceiptLen is the gateway's limit on receipt strings.
const maxReceiptLen = 40

// invalidSignatureReason is the failure reason recorded when a client
// submits a signature that does not verify.
const invalidSignatureReason = "Invalid payment signature"

// Service implements the payment order lifecycle: creation against the
// gateway, client-driven verification, cancellation and reporting. It is
// constructed once at startup and injected into the HTTP layer.
type Service struct {
	catalog  *PlanCatalog
	store    Store
	gateway  Gateway
	users    users.Service
	verifier *SignatureVerifier
	logger   *observability.Logger
	metrics  *observability.Metrics

	// now is swapped in tests for deterministic receipts.
	now func() time.Time
}

// NewService creates a new billing service.
func NewService(catalog *PlanCatalog, store Store, gateway Gateway, userSvc users.Service,
	verifier *SignatureVerifier, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		catalog:  catalog,
		store:    store,
		gateway:  gateway,
		users:    userSvc,
		verifier: verifier,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// PlanInfo is the public view of a catalog plan.
type PlanInfo struct {
	PlanID          string `json:"planId"`
	AmountMinor     int64  `json:"amount"`
	Currency        string `json:"currency"`
	Description     string `json:"description"`
	DurationDays    int    `json:"durationDays"`
	FormattedAmount string `json:"formattedAmount"`
}

// ListPlans returns all purchasable plans in catalog order.
func (s *Service) ListPlans() []PlanInfo {
	plans := s.catalog.List()
	out := make([]PlanInfo, 0, len(plans))
	for _, p := range plans {
		out = append(out, PlanInfo{
			PlanID:          p.ID,
			AmountMinor:     p.AmountMinor,
			Currency:        p.Currency,
			Description:     p.Description,
			DurationDays:    p.DurationDays(),
			FormattedAmount: p.FormattedAmount(),
		})
	}
	return out
}

// CreateOrder validates plan and user eligibility, mints an order on the
// gateway and persists a matching pending record. Exactly one record is
// created per successful call.
func (s *Service) CreateOrder(ctx context.Context, userID int64, planID string) (*CreateOrderResult, error) {
	plan, ok := s.catalog.Lookup(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlan, planID)
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.IsPremium {
		return nil, fmt.Errorf("%w: user %d", ErrAlreadyPremium, userID)
	}

	// The receipt is a deterministic reference for the gateway, not a
	// security control.
	receipt := fmt.Sprintf("rcpt_%d_%d", userID, s.now().Unix())
	if len(receipt) > maxReceiptLen {
		receipt = receipt[:maxReceiptLen]
	}

	notes := map[string]string{
		"user_id":   fmt.Sprintf("%d", userID),
		"plan_type": plan.ID,
		"purpose":   "premium_upgrade",
	}

	start := s.now()
	gwOrder, err := s.gateway.CreateOrder(ctx, plan.AmountMinor, plan.Currency, receipt, notes)
	s.metrics.GatewayCallDuration.WithLabelValues("create_order").Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.GatewayErrorsTotal.Inc()
		s.logger.WithError(err).WithField("user_id", userID).Error("Gateway order creation failed")
		// GatewayError carries the provider's message; never swallow it.
		return nil, err
	}

	order := &PaymentOrder{
		UserID:         userID,
		GatewayOrderID: gwOrder.ID,
		AmountMinor:    plan.AmountMinor,
		Currency:       plan.Currency,
		PlanID:         plan.ID,
		Description:    plan.Description,
		Status:         PaymentStatusPending,
		Notes:          notes,
	}
	if err := s.store.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist payment order: %w", err)
	}

	s.metrics.OrdersCreatedTotal.WithLabelValues(plan.ID).Inc()
	s.logger.WithFields(map[string]interface{}{
		"user_id":          userID,
		"gateway_order_id": gwOrder.ID,
		"plan":             plan.ID,
	}).Info("Payment order created")

	return &CreateOrderResult{
		GatewayOrderID: gwOrder.ID,
		AmountMinor:    plan.AmountMinor,
		Currency:       plan.Currency,
		PlanID:         plan.ID,
		Description:    plan.Description,
		GatewayKeyID:   s.gateway.KeyID(),
		User:           OrderUser{Name: user.Name, Email: user.Email},
	}, nil
}

// VerifyPayment checks a client-submitted payment completion. An invalid
// signature transitions the order to failed (the attempt itself is audit
// information) and reports ErrVerificationFailed. A valid signature
// transitions the order to completed and flips the user's premium flag;
// repeating the call on an already-completed order is a benign no-op.
func (s *Service) VerifyPayment(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (*VerifyResult, error) {
	if _, err := s.store.FindByGatewayOrderID(ctx, gatewayOrderID); err != nil {
		return nil, err
	}

	if !s.verifier.VerifyPayment(gatewayOrderID, gatewayPaymentID, signature) {
		s.metrics.VerificationsTotal.WithLabelValues("invalid_signature").Inc()
		if _, transitioned, ferr := s.store.MarkFailed(ctx, gatewayOrderID, invalidSignatureReason); ferr != nil {
			s.logger.WithError(ferr).WithField("gateway_order_id", gatewayOrderID).
				Error("Failed to record signature failure")
		} else if transitioned {
			s.metrics.TransitionsTotal.WithLabelValues(string(PaymentStatusFailed), "verify").Inc()
		}
		return nil, fmt.Errorf("%w: signature mismatch for order %s", ErrVerificationFailed, gatewayOrderID)
	}

	updated, transitioned, err := s.store.MarkCompleted(ctx, gatewayOrderID, gatewayPaymentID, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to complete payment order: %w", err)
	}

	switch {
	case transitioned:
		s.metrics.TransitionsTotal.WithLabelValues(string(PaymentStatusCompleted), "verify").Inc()
		if err := s.users.SetPremium(ctx, updated.UserID, true); err != nil {
			s.logger.WithError(err).WithField("user_id", updated.UserID).
				Error("Failed to activate premium after completed payment")
			return nil, fmt.Errorf("failed to activate premium: %w", err)
		}
		s.logger.WithFields(map[string]interface{}{
			"user_id":          updated.UserID,
			"gateway_order_id": gatewayOrderID,
		}).Info("Payment verified, premium activated")
	case updated.Status == PaymentStatusCompleted:
		// Lost the race to the webhook (or a duplicate call). Re-assert the
		// idempotent premium flip: this is the retry path when an earlier
		// flip failed after the order completed.
		if err := s.users.SetPremium(ctx, updated.UserID, true); err != nil {
			s.logger.WithError(err).WithField("user_id", updated.UserID).
				Error("Failed to activate premium after completed payment")
			return nil, fmt.Errorf("failed to activate premium: %w", err)
		}
	default:
		// Terminal in a non-completed state; a correct signature cannot
		// resurrect a failed or cancelled order.
		s.metrics.VerificationsTotal.WithLabelValues("terminal").Inc()
		return nil, fmt.Errorf("%w: order %s is %s", ErrVerificationFailed, gatewayOrderID, updated.Status)
	}

	s.metrics.VerificationsTotal.WithLabelValues("success").Inc()
	return &VerifyResult{
		Success:          true,
		GatewayPaymentID: updated.GatewayPaymentID,
		GatewayOrderID:   updated.GatewayOrderID,
		PlanID:           updated.PlanID,
		AmountMinor:      updated.AmountMinor,
		Currency:         updated.Currency,
	}, nil
}

// HandlePaymentFailure records a client-reported payment failure.
func (s *Service) HandlePaymentFailure(ctx context.Context, gatewayOrderID, reason string) (*PaymentOrder, error) {
	if reason == "" {
		reason = "Payment failed"
	}
	order, transitioned, err := s.store.MarkFailed(ctx, gatewayOrderID, reason)
	if err != nil {
		return nil, err
	}
	if transitioned {
		s.metrics.TransitionsTotal.WithLabelValues(string(PaymentStatusFailed), "client").Inc()
		s.logger.WithFields(map[string]interface{}{
			"gateway_order_id": gatewayOrderID,
			"reason":           reason,
		}).Info("Payment marked failed")
	}
	return order, nil
}

// CancelPayment cancels a pending order owned by userID. Terminal orders and
// orders owned by other users report ErrPendingNotFound.
func (s *Service) CancelPayment(ctx context.Context, gatewayOrderID string, userID int64) (*PaymentOrder, error) {
	order, transitioned, err := s.store.MarkCancelled(ctx, gatewayOrderID, userID)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return nil, fmt.Errorf("%w: order %s for user %d", ErrPendingNotFound, gatewayOrderID, userID)
	}
	s.metrics.TransitionsTotal.WithLabelValues(string(PaymentStatusCancelled), "client").Inc()
	s.logger.WithFields(map[string]interface{}{
		"gateway_order_id": gatewayOrderID,
		"user_id":          userID,
	}).Info("Payment order cancelled")
	return order, nil
}

// History returns one page of payment orders matching the filter.
func (s *Service) History(ctx context.Context, filter OrderFilter, page, pageSize int) (*HistoryResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	records, total, err := s.store.List(ctx, filter, page, pageSize)
	if err != nil {
		return nil, err
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &HistoryResult{
		Records: records,
		Pagination: Pagination{
			CurrentPage:  page,
			TotalPages:   totalPages,
			TotalItems:   total,
			ItemsPerPage: pageSize,
		},
	}, nil
}

// Stats aggregates payment counts and amounts; userID 0 covers all users.
func (s *Service) Stats(ctx context.Context, userID int64) (*PaymentStats, error) {
	return s.store.Stats(ctx, userID)
}
