package billing

import (
	"time"
)

// PaymentStatus represents the status of a payment order
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted out of s.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s.IsTerminal()
}

// PaymentOrder is a payment record tied to an order minted by the gateway.
// Amounts are always integer minor currency units (paise/cents).
type PaymentOrder struct {
	ID               int64             `json:"id"`
	UserID           int64             `json:"user_id"`
	GatewayOrderID   string            `json:"gateway_order_id"`
	GatewayPaymentID string            `json:"gateway_payment_id,omitempty"`
	GatewaySignature string            `json:"gateway_signature,omitempty"`
	AmountMinor      int64             `json:"amount"`
	Currency         string            `json:"currency"`
	PlanID           string            `json:"plan_id"`
	Description      string            `json:"description,omitempty"`
	Status           PaymentStatus     `json:"status"`
	FailureReason    string            `json:"failure_reason,omitempty"`
	Notes            map[string]string `json:"notes,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// OrderFilter narrows history queries. Zero values mean "no filter".
type OrderFilter struct {
	UserID        int64
	Status        PaymentStatus
	PlanID        string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	MinAmount     int64
	MaxAmount     int64
}

// PaymentStats aggregates order counts and amounts, optionally per user.
type PaymentStats struct {
	TotalPayments     int64 `json:"totalPayments"`
	TotalAmount       int64 `json:"totalAmount"`
	CompletedPayments int64 `json:"completedPayments"`
	CompletedAmount   int64 `json:"completedAmount"`
	FailedPayments    int64 `json:"failedPayments"`
	PendingPayments   int64 `json:"pendingPayments"`
}

// Pagination describes one page of a history result.
type Pagination struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
	TotalItems   int64 `json:"totalItems"`
	ItemsPerPage int   `json:"itemsPerPage"`
}

// HistoryResult is a page of payment orders plus pagination metadata.
type HistoryResult struct {
	Records    []*PaymentOrder `json:"records"`
	Pagination Pagination      `json:"pagination"`
}

// CreateOrderResult is returned to the client to drive the gateway checkout.
type CreateOrderResult struct {
	GatewayOrderID string    `json:"orderId"`
	AmountMinor    int64     `json:"amount"`
	Currency       string    `json:"currency"`
	PlanID         string    `json:"planType"`
	Description    string    `json:"description"`
	GatewayKeyID   string    `json:"gatewayKeyId"`
	User           OrderUser `json:"user"`
}

// OrderUser is the subset of user fields echoed back on order creation.
type OrderUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// VerifyResult is returned after a successful client-side verification.
type VerifyResult struct {
	Success          bool   `json:"success"`
	GatewayPaymentID string `json:"paymentId"`
	GatewayOrderID   string `json:"orderId"`
	PlanID           string `json:"planType"`
	AmountMinor      int64  `json:"amount"`
	Currency         string `json:"currency"`
}

// WebhookResult is always success-shaped; Processed is false when the event
// was acknowledged without any action being taken.
type WebhookResult struct {
	Processed      bool   `json:"processed"`
	Event          string `json:"event,omitempty"`
	GatewayOrderID string `json:"orderId,omitempty"`
}
