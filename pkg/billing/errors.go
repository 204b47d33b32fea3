package billing

import (
	"errors"
	"fmt"
)

// Sentinel errors for the billing core. Handlers map these onto HTTP
// status codes; services wrap them with context via fmt.Errorf and %w.
var (
	// ErrInvalidPlan indicates the plan id does not resolve in the catalog.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrUserNotFound indicates the owning user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrAlreadyPremium indicates the user already has premium access.
	ErrAlreadyPremium = errors.New("user already has premium access")

	// ErrRecordNotFound indicates no payment order matches the gateway order id.
	ErrRecordNotFound = errors.New("payment record not found")

	// ErrPendingNotFound indicates no pending order owned by the caller matches.
	ErrPendingNotFound = errors.New("no pending payment found")

	// ErrVerificationFailed indicates the payment signature did not verify.
	ErrVerificationFailed = errors.New("payment verification failed")

	// ErrDuplicateOrder indicates a payment order with the same gateway
	// order id already exists.
	ErrDuplicateOrder = errors.New("duplicate gateway order id")
)

// GatewayError wraps an upstream payment gateway failure. The gateway's own
// message is preserved so callers can act on it.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is one of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrPendingNotFound) ||
		errors.Is(err, ErrUserNotFound)
}
