package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// SignatureVerifier checks HMAC-SHA256 signatures issued by the payment
// gateway. It is the sole trust boundary between this system and claims the
// client makes about a payment's success. The secret may be rotated at
// runtime via UpdateSecret.
type SignatureVerifier struct {
	mu     sync.RWMutex
	secret []byte
}

// NewSignatureVerifier creates a verifier for the given shared secret.
func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// UpdateSecret swaps the shared secret. In-flight verifications finish
// with the secret they started with.
func (v *SignatureVerifier) UpdateSecret(secret string) {
	v.mu.Lock()
	v.secret = []byte(secret)
	v.mu.Unlock()
}

// VerifyPayment checks the signature over "orderID|paymentID". Any malformed
// input yields false rather than an error (fail closed).
func (v *SignatureVerifier) VerifyPayment(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	v.mu.RLock()
	secret := v.secret
	v.mu.RUnlock()
	expected := signHex(secret, orderID+"|"+paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookBody checks the transport signature over the raw webhook body.
func VerifyWebhookBody(body []byte, signature, secret string) bool {
	if len(body) == 0 || signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func signHex(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
