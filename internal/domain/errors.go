package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound         = errors.New("not found")
	ErrBadRequest       = errors.New("bad request")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrInvalidSession   = errors.New("invalid session")
	ErrExpired          = errors.New("expired")
	ErrRateLimited      = errors.New("rate limited")
	ErrNotConfigured    = errors.New("not configured")
	ErrGateway          = errors.New("gateway error")
	ErrSignatureInvalid = errors.New("signature invalid")
)

// RateLimitedError carries the remaining cool-down so handlers can emit a retry hint.
type RateLimitedError struct {
	RetryAfter int // seconds
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many attempts, retry in %d seconds", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// GatewayError wraps a payment-provider failure. RawBody holds the provider's
// error response for operator diagnosis; it is logged, never sent to clients.
type GatewayError struct {
	Provider string
	Status   int
	RawBody  string
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s gateway: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s gateway: status %d", e.Provider, e.Status)
}

func (e *GatewayError) Unwrap() error { return ErrGateway }
