package billing

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huamanraj/project-management-api/pkg/observability"
)

// fakeDeduper remembers event ids in memory.
type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (d *fakeDeduper) MarkSeen(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[eventID] {
		return false, nil
	}
	d.seen[eventID] = true
	return true, nil
}

func newTestWebhookService(store Store, userSvc *fakeUserService, deduper EventDeduper) *WebhookService {
	return NewWebhookService(store, userSvc, "hook-secret", deduper,
		observability.NewLogger(observability.ErrorLevel, io.Discard),
		observability.NewMetrics(prometheus.NewRegistry()))
}

func capturedBody(eventID, orderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"payment.captured","id":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q}}}}`,
		eventID, paymentID, orderID))
}

func signedDelivery(body []byte) (payload []byte, signature string) {
	return body, sign("hook-secret", string(body))
}

func TestHandleEventCaptured(t *testing.T) {
	ctx := context.Background()

	t.Run("completes order and activates premium", func(t *testing.T) {
		store := newFakeStore()
		userSvc := &fakeUserService{}
		svc := newTestWebhookService(store, userSvc, nil)
		pendingOrder(store, 7, "order_abc")

		body, sig := signedDelivery(capturedBody("evt_1", "order_abc", "pay_xyz"))
		result := svc.HandleEvent(ctx, body, sig)

		assert.True(t, result.Processed)
		assert.Equal(t, "payment.captured", result.Event)
		assert.Equal(t, "order_abc", result.GatewayOrderID)
		assert.Equal(t, PaymentStatusCompleted, store.get("order_abc").Status)
		assert.Equal(t, 1, userSvc.premiumSetCount())
	})

	t.Run("duplicate delivery re-asserts premium without a second transition", func(t *testing.T) {
		store := newFakeStore()
		userSvc := &fakeUserService{}
		svc := newTestWebhookService(store, userSvc, nil)
		pendingOrder(store, 7, "order_abc")

		body, sig := signedDelivery(capturedBody("evt_1", "order_abc", "pay_xyz"))
		require.True(t, svc.HandleEvent(ctx, body, sig).Processed)

		result := svc.HandleEvent(ctx, body, sig)
		assert.True(t, result.Processed)
		assert.Equal(t, 1, store.transitionCount())
		assert.Equal(t, 2, userSvc.premiumSetCount())
	})

	t.Run("redelivery recovers a failed premium flip", func(t *testing.T) {
		store := newFakeStore()
		userSvc := &fakeUserService{}
		userSvc.setPremiumFunc = func(ctx context.Context, id int64, premium bool) error {
			if userSvc.premiumSetCount() == 1 {
				return fmt.Errorf("users service unavailable")
			}
			return nil
		}
		svc := newTestWebhookService(store, userSvc, nil)
		pendingOrder(store, 7, "order_abc")

		body, sig := signedDelivery(capturedBody("evt_1", "order_abc", "pay_xyz"))
		result := svc.HandleEvent(ctx, body, sig)
		assert.False(t, result.Processed, "failed flip must not acknowledge the delivery")
		assert.Equal(t, PaymentStatusCompleted, store.get("order_abc").Status)

		result = svc.HandleEvent(ctx, body, sig)
		assert.True(t, result.Processed)
		assert.Equal(t, 1, store.transitionCount())
		assert.Equal(t, 2, userSvc.premiumSetCount())
	})

	t.Run("unmatched order id is acknowledged", func(t *testing.T) {
		svc := newTestWebhookService(newFakeStore(), &fakeUserService{}, nil)

		body, sig := signedDelivery(capturedBody("evt_1", "order_unknown", "pay_xyz"))
		result := svc.HandleEvent(ctx, body, sig)
		assert.True(t, result.Processed)
	})

	t.Run("capture after client verification keeps client result", func(t *testing.T) {
		store := newFakeStore()
		userSvc := &fakeUserService{}
		svc := newTestWebhookService(store, userSvc, nil)
		pendingOrder(store, 7, "order_abc")
		store.MarkCompleted(ctx, "order_abc", "pay_client", "sig")

		body, sig := signedDelivery(capturedBody("evt_1", "order_abc", "pay_hook"))
		result := svc.HandleEvent(ctx, body, sig)

		assert.True(t, result.Processed)
		assert.Equal(t, "pay_client", store.get("order_abc").GatewayPaymentID)
	})
}

func TestHandleEventFailed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestWebhookService(store, &fakeUserService{}, nil)
	pendingOrder(store, 7, "order_abc")

	body, sig := signedDelivery([]byte(
		`{"event":"payment.failed","id":"evt_2","payload":{"payment":{"entity":{"id":"pay_xyz","order_id":"order_abc","error_description":"card declined"}}}}`))
	result := svc.HandleEvent(ctx, body, sig)

	assert.True(t, result.Processed)
	order := store.get("order_abc")
	assert.Equal(t, PaymentStatusFailed, order.Status)
	assert.Equal(t, "card declined", order.FailureReason)

	// A late failure for an already-failed order changes nothing.
	result = svc.HandleEvent(ctx, body, sig)
	assert.True(t, result.Processed)
	assert.Equal(t, 1, store.transitionCount())
}

func TestHandleEventOrderPaid(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestWebhookService(store, &fakeUserService{}, nil)
	pendingOrder(store, 7, "order_abc")

	body, sig := signedDelivery([]byte(
		`{"event":"order.paid","id":"evt_3","payload":{"order":{"entity":{"id":"order_abc"}}}}`))
	result := svc.HandleEvent(ctx, body, sig)

	assert.True(t, result.Processed)
	order := store.get("order_abc")
	assert.Equal(t, PaymentStatusPending, order.Status, "order.paid must not transition status")
	assert.Equal(t, "evt_3", order.Notes["order_paid_event"])
}

func TestHandleEventRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown event type", func(t *testing.T) {
		svc := newTestWebhookService(newFakeStore(), &fakeUserService{}, nil)
		body, sig := signedDelivery([]byte(`{"event":"refund.created","id":"evt_4","payload":{}}`))
		result := svc.HandleEvent(ctx, body, sig)
		assert.False(t, result.Processed)
		assert.Equal(t, "refund.created", result.Event)
	})

	t.Run("bad signature", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestWebhookService(store, &fakeUserService{}, nil)
		pendingOrder(store, 7, "order_abc")

		result := svc.HandleEvent(ctx, capturedBody("evt_1", "order_abc", "pay_xyz"), "forged")
		assert.False(t, result.Processed)
		assert.Equal(t, PaymentStatusPending, store.get("order_abc").Status)
	})

	t.Run("malformed body", func(t *testing.T) {
		svc := newTestWebhookService(newFakeStore(), &fakeUserService{}, nil)
		body, sig := signedDelivery([]byte(`{"event":`))
		result := svc.HandleEvent(ctx, body, sig)
		assert.False(t, result.Processed)
	})
}

func TestHandleEventDedupe(t *testing.T) {
	ctx := context.Background()

	t.Run("replays are short-circuited", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestWebhookService(store, &fakeUserService{}, &fakeDeduper{})
		pendingOrder(store, 7, "order_abc")

		body, sig := signedDelivery(capturedBody("evt_1", "order_abc", "pay_xyz"))
		require.True(t, svc.HandleEvent(ctx, body, sig).Processed)

		store2 := store.get("order_abc")
		assert.Equal(t, PaymentStatusCompleted, store2.Status)

		result := svc.HandleEvent(ctx, body, sig)
		assert.True(t, result.Processed)
		assert.Equal(t, 1, store.transitionCount())
	})

	t.Run("cache failure does not block processing", func(t *testing.T) {
		store := newFakeStore()
		deduper := &fakeDeduper{err: fmt.Errorf("redis down")}
		svc := newTestWebhookService(store, &fakeUserService{}, deduper)
		pendingOrder(store, 7, "order_abc")

		body, sig := signedDelivery(capturedBody("evt_1", "order_abc", "pay_xyz"))
		result := svc.HandleEvent(ctx, body, sig)
		assert.True(t, result.Processed)
		assert.Equal(t, PaymentStatusCompleted, store.get("order_abc").Status)
	})
}

func TestUpdateSecretRotation(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := newTestWebhookService(store, &fakeUserService{}, nil)
	pendingOrder(store, 7, "order_abc")

	body := capturedBody("evt_1", "order_abc", "pay_xyz")
	newSig := sign("rotated-secret", string(body))
	assert.False(t, svc.HandleEvent(ctx, body, newSig).Processed)

	svc.UpdateSecret("rotated-secret")
	assert.True(t, svc.HandleEvent(ctx, body, newSig).Processed)
}
