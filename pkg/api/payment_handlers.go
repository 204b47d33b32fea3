package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/huamanraj/project-management-api/pkg/billing"
	"github.com/huamanraj/project-management-api/pkg/httputil"
	"github.com/huamanraj/project-management-api/pkg/observability"
)

// PaymentHandlers handles payment order HTTP requests
type PaymentHandlers struct {
	service *billing.Service
	logger  *observability.Logger
}

// NewPaymentHandlers creates a new PaymentHandlers
func NewPaymentHandlers(service *billing.Service, logger *observability.Logger) *PaymentHandlers {
	return &PaymentHandlers{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers payment routes
func (h *PaymentHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/payments/plans", h.ListPlans).Methods("GET")
	router.HandleFunc("/payments/create-order", h.CreateOrder).Methods("POST")
	router.HandleFunc("/payments/verify", h.VerifyPayment).Methods("POST")
	router.HandleFunc("/payments/failure", h.PaymentFailure).Methods("POST")
	router.HandleFunc("/payments/cancel", h.CancelPayment).Methods("POST")
	router.HandleFunc("/payments/history", h.History).Methods("GET")
	router.HandleFunc("/payments/stats", h.Stats).Methods("GET")
}

// userID extracts the authenticated user id set by the auth proxy.
func userID(r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// writeServiceError maps the billing error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var gwErr *billing.GatewayError
	switch {
	case errors.Is(err, billing.ErrInvalidPlan),
		errors.Is(err, billing.ErrVerificationFailed):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, billing.ErrUserNotFound),
		errors.Is(err, billing.ErrRecordNotFound),
		errors.Is(err, billing.ErrPendingNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, billing.ErrAlreadyPremium),
		errors.Is(err, billing.ErrDuplicateOrder):
		httputil.WriteConflict(w, err.Error())
	case errors.As(err, &gwErr):
		httputil.WriteBadGateway(w, "payment gateway unavailable")
	default:
		httputil.WriteInternalError(w, err)
	}
}

// ListPlans returns the purchasable plan catalog
func (h *PaymentHandlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"plans": h.service.ListPlans(),
	})
}

type createOrderRequest struct {
	PlanType string `json:"planType"`
}

// CreateOrder creates a gateway order for a premium plan purchase
func (h *PaymentHandlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req createOrderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.PlanType, "planType") {
		return
	}

	result, err := h.service.CreateOrder(r.Context(), uid, req.PlanType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, result)
}

type verifyRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

// VerifyPayment verifies a client-submitted payment completion proof
func (h *PaymentHandlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.OrderID, "orderId") ||
		!httputil.RequireNonEmpty(w, req.PaymentID, "paymentId") ||
		!httputil.RequireNonEmpty(w, req.Signature, "signature") {
		return
	}

	result, err := h.service.VerifyPayment(r.Context(), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		// A proof naming an unknown order is a bad request, not a missing
		// resource: the client claims a payment this service never created.
		if errors.Is(err, billing.ErrRecordNotFound) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

type failureRequest struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// PaymentFailure records a client-reported payment failure
func (h *PaymentHandlers) PaymentFailure(w http.ResponseWriter, r *http.Request) {
	var req failureRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.OrderID, "orderId") {
		return
	}

	order, err := h.service.HandlePaymentFailure(r.Context(), req.OrderID, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"orderId": order.GatewayOrderID,
		"status":  order.Status,
	})
}

type cancelRequest struct {
	OrderID string `json:"orderId"`
}

// CancelPayment cancels the caller's pending payment order
func (h *PaymentHandlers) CancelPayment(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req cancelRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.OrderID, "orderId") {
		return
	}

	order, err := h.service.CancelPayment(r.Context(), req.OrderID, uid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"orderId": order.GatewayOrderID,
		"status":  order.Status,
	})
}

// History returns one page of the caller's payment orders
func (h *PaymentHandlers) History(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	page, err := httputil.ParseQueryInt(r, "page", 1)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	pageSize, err := httputil.ParseQueryInt(r, "limit", 10)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	filter := billing.OrderFilter{UserID: uid}
	if status := httputil.ParseQueryString(r, "status", ""); status != "" {
		st := billing.PaymentStatus(status)
		if !st.Valid() {
			httputil.WriteBadRequest(w, "invalid status filter: "+status)
			return
		}
		filter.Status = st
	}
	filter.PlanID = httputil.ParseQueryString(r, "plan", "")
	if filter.CreatedAfter, err = httputil.ParseQueryTime(r, "from"); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if filter.CreatedBefore, err = httputil.ParseQueryTime(r, "to"); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if filter.MinAmount, err = httputil.ParseQueryInt64(r, "minAmount", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if filter.MaxAmount, err = httputil.ParseQueryInt64(r, "maxAmount", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.History(r.Context(), filter, page, pageSize)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// Stats returns aggregate payment statistics for the caller
func (h *PaymentHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	stats, err := h.service.Stats(r.Context(), uid)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}

// GlobalStats reports aggregates across every user. It is served on the
// internal ops listener, not the public API, so it carries no caller scoping.
func (h *PaymentHandlers) GlobalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), 0)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}
