package gateway

import (
	"context"
	"testing"

	"github.com/rental-gate-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type linkOnlyAdapter struct{ name string }

func (a *linkOnlyAdapter) ID() string { return a.name }
func (a *linkOnlyAdapter) CreateCheckout(context.Context, domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	return &domain.CheckoutResult{URL: "https://x.test"}, nil
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry()
	mock := NewMockAdapter()
	r.Register(mock)
	r.Register(&linkOnlyAdapter{name: "linkpay"})

	got, err := r.Get(MockID)
	require.NoError(t, err)
	assert.Equal(t, MockID, got.ID())

	_, err = r.Get("unknown")
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	assert.Equal(t, []string{MockID, "linkpay"}, r.IDs())
}

func TestRegistry_GetVerifier(t *testing.T) {
	r := NewRegistry()
	r.Register(NewMockAdapter())
	r.Register(&linkOnlyAdapter{name: "linkpay"})

	_, err := r.GetVerifier(MockID)
	assert.NoError(t, err)

	// Link-only providers settle by webhook; there is nothing to poll.
	_, err = r.GetVerifier("linkpay")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestMockAdapter_RoundTrip(t *testing.T) {
	a := NewMockAdapter()
	res, err := a.CreateCheckout(context.Background(), domain.CheckoutRequest{
		UserID: "u1", VideoID: "v1", AmountCents: 2500, Currency: "USD",
		RentalDurationHours: 48,
		ReturnURL:           "https://api.test/rentals/return?rental=success&popup=1",
	})
	require.NoError(t, err)
	assert.Contains(t, res.URL, "order_id="+res.OrderID)

	vr, err := a.Verify(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.True(t, vr.Paid)
	assert.Equal(t, "u1", vr.UserID)

	_, err = a.Verify(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
