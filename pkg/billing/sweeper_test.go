package billing

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/huamanraj/project-management-api/pkg/observability"
)

func newTestSweeper(store Store, ttl time.Duration) *Sweeper {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewSweeper(store, ttl, logger, metrics)
}

func backdate(store *fakeStore, gatewayOrderID string, age time.Duration) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.orders[gatewayOrderID].CreatedAt = time.Now().Add(-age)
}

func TestSweepCancelsStalePending(t *testing.T) {
	store := newFakeStore()
	pendingOrder(store, 7, "order_stale")
	pendingOrder(store, 8, "order_fresh")
	backdate(store, "order_stale", 48*time.Hour)

	sweeper := newTestSweeper(store, DefaultStaleOrderTTL)

	swept := sweeper.Sweep(context.Background())

	assert.Equal(t, int64(1), swept)
	assert.Equal(t, PaymentStatusCancelled, store.get("order_stale").Status)
	assert.Equal(t, PaymentStatusPending, store.get("order_fresh").Status)
}

func TestSweepLeavesTerminalOrders(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	pendingOrder(store, 7, "order_done")
	store.MarkCompleted(ctx, "order_done", "pay_1", "sig")
	backdate(store, "order_done", 48*time.Hour)

	sweeper := newTestSweeper(store, DefaultStaleOrderTTL)

	assert.Equal(t, int64(0), sweeper.Sweep(ctx))
	assert.Equal(t, PaymentStatusCompleted, store.get("order_done").Status)
}

func TestSweepIsRepeatable(t *testing.T) {
	store := newFakeStore()
	pendingOrder(store, 7, "order_stale")
	backdate(store, "order_stale", 48*time.Hour)

	sweeper := newTestSweeper(store, DefaultStaleOrderTTL)

	assert.Equal(t, int64(1), sweeper.Sweep(context.Background()))
	assert.Equal(t, int64(0), sweeper.Sweep(context.Background()))
}

func TestSweeperStartStop(t *testing.T) {
	store := newFakeStore()
	sweeper := newTestSweeper(store, time.Hour)

	assert.NoError(t, sweeper.Start("@every 1h"))
	sweeper.Stop()
}
