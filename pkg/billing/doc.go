// Package billing implements the payment order lifecycle for premium plan
// upgrades: order creation against the payment gateway, signature-verified
// payment confirmation, and idempotent webhook reconciliation.
//
// # Overview
//
// A purchase starts with CreateOrder, which validates the plan and the user's
// eligibility, mints an order on the external gateway, and persists a pending
// payment record. Confirmation then arrives on two independent paths: the
// client submits a signed proof to VerifyPayment, and the gateway delivers a
// webhook to WebhookService. Either path may win; a conditional database
// update guarantees exactly one pending -> terminal transition per order, and
// the loser observes a benign no-op.
//
// All amounts are integer minor currency units (paise, cents). Terminal
// statuses (completed, failed, cancelled) are sticky.
//
// # Plans
//
// The catalog ships two premium plans:
//
//   - monthly: 49900 paise (INR 499.00), 30 days
//   - yearly: 499900 paise (INR 4999.00), 365 days
//
// # Usage Example
//
// Create an order:
//
//	result, err := service.CreateOrder(ctx, userID, "monthly")
//	fmt.Printf("pay order %s, amount %d %s\n", result.GatewayOrderID, result.AmountMinor, result.Currency)
//
// Verify a client-submitted payment:
//
//	verified, err := service.VerifyPayment(ctx, orderID, paymentID, signature)
//
// Process a raw webhook delivery:
//
//	outcome := webhookSvc.HandleEvent(ctx, body, r.Header.Get("X-Gateway-Signature"))
//
// # Related Packages
//
//   - pkg/users: premium flag activation
//   - pkg/api: HTTP handlers for the operations above
package billing
