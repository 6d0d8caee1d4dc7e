// Package gateway normalizes heterogeneous payment-provider checkout flows
// behind one contract. Adapters translate provider-specific request/response
// shapes into domain.CheckoutRequest/CheckoutResult; confirmation is either a
// synchronous Verify call or an asynchronous webhook handled by the intake.
package gateway

import (
	"context"
	"fmt"

	"github.com/rental-gate-api/internal/domain"
)

// Adapter is the common contract every payment provider integration
// implements. New providers implement this interface and register under their
// id; dispatch code never branches on provider names.
type Adapter interface {
	ID() string
	CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error)
}

// Verifier is implemented by adapters whose provider supports synchronous
// server-side confirmation (hosted-session retrieval, order-status poll).
type Verifier interface {
	Verify(ctx context.Context, orderID string) (*domain.VerifyResult, error)
}

// Registry holds adapters keyed by gateway id. It is populated once at
// startup and read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	if _, dup := r.adapters[a.ID()]; !dup {
		r.order = append(r.order, a.ID())
	}
	r.adapters[a.ID()] = a
}

// Get returns the adapter for the gateway id, or ErrBadRequest for ids no
// adapter was registered under.
func (r *Registry) Get(id string) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("unknown gateway %q: %w", id, domain.ErrBadRequest)
	}
	return a, nil
}

// GetVerifier returns the adapter for id only if it supports synchronous
// confirmation.
func (r *Registry) GetVerifier(id string) (Verifier, error) {
	a, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	v, ok := a.(Verifier)
	if !ok {
		return nil, fmt.Errorf("gateway %q has no synchronous verify: %w", id, domain.ErrBadRequest)
	}
	return v, nil
}

// IDs returns registered gateway ids in registration order, for the paywall
// config endpoint.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
