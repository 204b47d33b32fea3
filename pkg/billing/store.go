package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Store persists payment orders. Status transitions use a conditional
// update (check-and-set) so concurrent writers race safely: exactly one
// caller observes transitioned=true for any pending order.
type Store interface {
	Create(ctx context.Context, order *PaymentOrder) error
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*PaymentOrder, error)

	// MarkCompleted transitions a pending order to completed, recording the
	// gateway payment id and signature. transitioned is false when the order
	// was already terminal.
	MarkCompleted(ctx context.Context, gatewayOrderID, paymentID, signature string) (order *PaymentOrder, transitioned bool, err error)

	// MarkFailed transitions a pending order to failed with a reason.
	MarkFailed(ctx context.Context, gatewayOrderID, reason string) (order *PaymentOrder, transitioned bool, err error)

	// MarkCancelled transitions a pending order to cancelled, but only when
	// it is owned by userID. transitioned is false otherwise.
	MarkCancelled(ctx context.Context, gatewayOrderID string, userID int64) (order *PaymentOrder, transitioned bool, err error)

	// AppendNote merges a key into the order's notes map without touching status.
	AppendNote(ctx context.Context, gatewayOrderID, key, value string) error

	// List returns one page of orders matching the filter plus the total count.
	List(ctx context.Context, filter OrderFilter, page, pageSize int) ([]*PaymentOrder, int64, error)

	// Stats aggregates counts and amounts; userID 0 means all users.
	Stats(ctx context.Context, userID int64) (*PaymentStats, error)

	// CancelStale cancels pending orders created before cutoff and returns
	// how many were cancelled.
	CancelStale(ctx context.Context, cutoff time.Time) (int64, error)
}

const orderColumns = `id, user_id, gateway_order_id, gateway_payment_id, gateway_signature,
       amount, currency, plan_id, description, status, failure_reason, notes, created_at, updated_at`

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the payment_orders table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS payment_orders (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			gateway_order_id TEXT NOT NULL UNIQUE,
			gateway_payment_id TEXT,
			gateway_signature TEXT,
			amount BIGINT NOT NULL CHECK (amount >= 0),
			currency TEXT NOT NULL,
			plan_id TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			failure_reason TEXT,
			notes JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_payment_orders_user_id ON payment_orders(user_id);
		CREATE INDEX IF NOT EXISTS idx_payment_orders_status ON payment_orders(status);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate payment_orders: %w", err)
	}
	return nil
}

// Create inserts a new pending payment order.
func (s *PostgresStore) Create(ctx context.Context, order *PaymentOrder) error {
	if order.Status == "" {
		order.Status = PaymentStatusPending
	}
	if order.AmountMinor < 0 {
		return fmt.Errorf("amount must be non-negative, got %d", order.AmountMinor)
	}
	notesJSON, err := json.Marshal(notesOrEmpty(order.Notes))
	if err != nil {
		return fmt.Errorf("failed to marshal notes: %w", err)
	}

	query := `
		INSERT INTO payment_orders (user_id, gateway_order_id, amount, currency, plan_id, description, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		order.UserID, order.GatewayOrderID, order.AmountMinor, order.Currency,
		order.PlanID, order.Description, order.Status, notesJSON).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.GatewayOrderID)
		}
		return fmt.Errorf("failed to create payment order: %w", err)
	}
	return nil
}

// FindByGatewayOrderID retrieves an order by its gateway-issued id.
func (s *PostgresStore) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*PaymentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders WHERE gateway_order_id = $1`
	order, err := scanOrder(s.db.QueryRowContext(ctx, query, gatewayOrderID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, gatewayOrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment order: %w", err)
	}
	return order, nil
}

// MarkCompleted applies the pending -> completed transition atomically.
func (s *PostgresStore) MarkCompleted(ctx context.Context, gatewayOrderID, paymentID, signature string) (*PaymentOrder, bool, error) {
	query := `
		UPDATE payment_orders
		SET status = $1, gateway_payment_id = $2, gateway_signature = $3, updated_at = NOW()
		WHERE gateway_order_id = $4 AND status = $5
		RETURNING ` + orderColumns
	order, err := scanOrder(s.db.QueryRowContext(ctx, query,
		PaymentStatusCompleted, paymentID, signature, gatewayOrderID, PaymentStatusPending))
	if err == sql.ErrNoRows {
		return s.loseRace(ctx, gatewayOrderID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to complete payment order: %w", err)
	}
	return order, true, nil
}

// MarkFailed applies the pending -> failed transition atomically.
func (s *PostgresStore) MarkFailed(ctx context.Context, gatewayOrderID, reason string) (*PaymentOrder, bool, error) {
	query := `
		UPDATE payment_orders
		SET status = $1, failure_reason = $2, updated_at = NOW()
		WHERE gateway_order_id = $3 AND status = $4
		RETURNING ` + orderColumns
	order, err := scanOrder(s.db.QueryRowContext(ctx, query,
		PaymentStatusFailed, reason, gatewayOrderID, PaymentStatusPending))
	if err == sql.ErrNoRows {
		return s.loseRace(ctx, gatewayOrderID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to fail payment order: %w", err)
	}
	return order, true, nil
}

// MarkCancelled applies the pending -> cancelled transition atomically for a
// specific owner.
func (s *PostgresStore) MarkCancelled(ctx context.Context, gatewayOrderID string, userID int64) (*PaymentOrder, bool, error) {
	query := `
		UPDATE payment_orders
		SET status = $1, updated_at = NOW()
		WHERE gateway_order_id = $2 AND user_id = $3 AND status = $4
		RETURNING ` + orderColumns
	order, err := scanOrder(s.db.QueryRowContext(ctx, query,
		PaymentStatusCancelled, gatewayOrderID, userID, PaymentStatusPending))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to cancel payment order: %w", err)
	}
	return order, true, nil
}

// AppendNote merges one key/value into the notes map.
func (s *PostgresStore) AppendNote(ctx context.Context, gatewayOrderID, key, value string) error {
	patch, err := json.Marshal(map[string]string{key: value})
	if err != nil {
		return fmt.Errorf("failed to marshal note: %w", err)
	}
	query := `
		UPDATE payment_orders
		SET notes = notes || $1::jsonb, updated_at = NOW()
		WHERE gateway_order_id = $2
	`
	result, err := s.db.ExecContext(ctx, query, patch, gatewayOrderID)
	if err != nil {
		return fmt.Errorf("failed to append note: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, gatewayOrderID)
	}
	return nil
}

// List returns one page of orders plus the total matching count.
func (s *PostgresStore) List(ctx context.Context, filter OrderFilter, page, pageSize int) ([]*PaymentOrder, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	where, args := buildFilter(filter)

	var total int64
	countQuery := `SELECT COUNT(*) FROM payment_orders` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payment orders: %w", err)
	}

	query := fmt.Sprintf(`SELECT `+orderColumns+` FROM payment_orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payment orders: %w", err)
	}
	defer rows.Close()

	var orders []*PaymentOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan payment order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate payment orders: %w", err)
	}
	return orders, total, nil
}

// Stats aggregates counts and amounts; userID 0 means all users.
func (s *PostgresStore) Stats(ctx context.Context, userID int64) (*PaymentStats, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(amount), 0),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COALESCE(SUM(amount) FILTER (WHERE status = 'completed'), 0),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COUNT(*) FILTER (WHERE status = 'pending')
		FROM payment_orders
		WHERE ($1 = 0 OR user_id = $1)
	`
	stats := &PaymentStats{}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&stats.TotalPayments, &stats.TotalAmount,
		&stats.CompletedPayments, &stats.CompletedAmount,
		&stats.FailedPayments, &stats.PendingPayments,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate payment stats: %w", err)
	}
	return stats, nil
}

// CancelStale cancels pending orders created before cutoff.
func (s *PostgresStore) CancelStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE payment_orders
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND created_at < $3
	`
	result, err := s.db.ExecContext(ctx, query, PaymentStatusCancelled, PaymentStatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel stale orders: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// loseRace re-reads the order after a zero-row conditional update to
// distinguish "already terminal" (benign no-op) from "no such record".
func (s *PostgresStore) loseRace(ctx context.Context, gatewayOrderID string) (*PaymentOrder, bool, error) {
	order, err := s.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return nil, false, err
	}
	return order, false, nil
}

func buildFilter(filter OrderFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.UserID != 0 {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.PlanID != "" {
		add("plan_id = $%d", filter.PlanID)
	}
	if !filter.CreatedAfter.IsZero() {
		add("created_at >= $%d", filter.CreatedAfter)
	}
	if !filter.CreatedBefore.IsZero() {
		add("created_at <= $%d", filter.CreatedBefore)
	}
	if filter.MinAmount > 0 {
		add("amount >= $%d", filter.MinAmount)
	}
	if filter.MaxAmount > 0 {
		add("amount <= $%d", filter.MaxAmount)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*PaymentOrder, error) {
	order := &PaymentOrder{}
	var paymentID, signature, description, failureReason sql.NullString
	var notesJSON []byte

	err := row.Scan(
		&order.ID, &order.UserID, &order.GatewayOrderID, &paymentID, &signature,
		&order.AmountMinor, &order.Currency, &order.PlanID, &description,
		&order.Status, &failureReason, &notesJSON, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.GatewayPaymentID = paymentID.String
	order.GatewaySignature = signature.String
	order.Description = description.String
	order.FailureReason = failureReason.String

	if len(notesJSON) > 0 {
		if err := json.Unmarshal(notesJSON, &order.Notes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notes: %w", err)
		}
	}
	return order, nil
}

func notesOrEmpty(notes map[string]string) map[string]string {
	if notes == nil {
		return map[string]string{}
	}
	return notes
}
