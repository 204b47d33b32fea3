package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GatewayOrder is the order minted by the payment gateway.
type GatewayOrder struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
	Receipt     string `json:"receipt"`
	Status      string `json:"status"`
}

// Gateway is the narrow interface to the external payment provider. The
// real HTTP client is swapped for a deterministic double in tests.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*GatewayOrder, error)
	KeyID() string
}

// HTTPGateway calls the payment provider's REST API using basic auth.
// Credentials may be rotated at runtime via UpdateCredentials.
type HTTPGateway struct {
	baseURL string
	client  *http.Client

	mu        sync.RWMutex
	keyID     string
	keySecret string
}

// HTTPGatewayConfig configures an HTTPGateway.
type HTTPGatewayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// NewHTTPGateway creates a gateway client with a bounded request timeout.
// Gateway calls never hang: they return or time out.
func NewHTTPGateway(cfg HTTPGatewayConfig) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		baseURL:   cfg.BaseURL,
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		client:    &http.Client{Timeout: timeout},
	}
}

// KeyID returns the public key id clients need to open the checkout flow.
func (g *HTTPGateway) KeyID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.keyID
}

// UpdateCredentials swaps the API key pair. In-flight calls keep the pair
// they started with.
func (g *HTTPGateway) UpdateCredentials(keyID, keySecret string) {
	g.mu.Lock()
	g.keyID = keyID
	g.keySecret = keySecret
	g.mu.Unlock()
}

func (g *HTTPGateway) credentials() (string, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.keyID, g.keySecret
}

// CreateOrder mints an order on the gateway.
func (g *HTTPGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*GatewayOrder, error) {
	body, err := json.Marshal(map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
		"notes":    notesOrEmpty(notes),
	})
	if err != nil {
		return nil, &GatewayError{Op: "create order", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, &GatewayError{Op: "create order", Err: err}
	}
	keyID, keySecret := g.credentials()
	req.SetBasicAuth(keyID, keySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &GatewayError{Op: "create order", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &GatewayError{Op: "create order", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GatewayError{
			Op:  "create order",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, gatewayErrorMessage(respBody)),
		}
	}

	var order GatewayOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, &GatewayError{Op: "create order", Err: fmt.Errorf("malformed response: %w", err)}
	}
	if order.ID == "" {
		return nil, &GatewayError{Op: "create order", Err: fmt.Errorf("response missing order id")}
	}
	return &order, nil
}

// gatewayErrorMessage extracts the provider's error description so it can be
// surfaced to the caller rather than swallowed.
func gatewayErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Description != "" {
		return envelope.Error.Description
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
