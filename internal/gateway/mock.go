package gateway

import (
	"context"
	"net/url"
	"strings"

	"github.com/rental-gate-api/internal/domain"
	"github.com/rental-gate-api/internal/pkg/id"
)

const MockID = "mock"

// MockAdapter completes every checkout instantly. Registered only outside
// production, and only when explicitly enabled, so local and staging
// environments can exercise the full unlock flow without provider
// credentials.
type MockAdapter struct {
	orders map[string]domain.CheckoutRequest
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{orders: make(map[string]domain.CheckoutRequest)}
}

func (a *MockAdapter) ID() string { return MockID }

func (a *MockAdapter) CreateCheckout(_ context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	orderID := "mock_" + id.New()
	a.orders[orderID] = req

	link := req.ReturnURL
	sep := "?"
	if strings.Contains(link, "?") {
		sep = "&"
	}
	link += sep + "order_id=" + url.QueryEscape(orderID)

	return &domain.CheckoutResult{URL: link, OrderID: orderID}, nil
}

// Verify reports every known order as paid.
func (a *MockAdapter) Verify(_ context.Context, orderID string) (*domain.VerifyResult, error) {
	req, ok := a.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.VerifyResult{
		Paid:                true,
		Status:              "PAID",
		AmountCents:         req.AmountCents,
		Currency:            req.Currency,
		UserID:              req.UserID,
		VideoID:             req.VideoID,
		RentalDurationHours: req.RentalDurationHours,
		RawPayload:          `{"mock":true}`,
	}, nil
}
