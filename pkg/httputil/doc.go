// Package httputil provides shared HTTP plumbing for the API handlers:
// JSON response helpers with consistent error envelopes, request body and
// query parameter parsing, and middleware for request ids, logging,
// panic recovery, CORS and body size limits.
//
// Handlers keep their own error-to-status mapping; this package only
// standardizes how a status and message are written once chosen.
package httputil
