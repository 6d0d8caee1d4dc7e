package rental

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rental-gate-api/internal/domain"
	"github.com/rental-gate-api/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// --- mocks ---

type mockPaymentStore struct{ mock.Mock }

func (m *mockPaymentStore) Upsert(ctx context.Context, p *domain.PaymentRecord) (*domain.PaymentRecord, error) {
	args := m.Called(ctx, p)
	if rec, _ := args.Get(0).(*domain.PaymentRecord); rec != nil {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockPaymentStore) SetSubRef(ctx context.Context, gw, ref, subRef string) error {
	return m.Called(ctx, gw, ref, subRef).Error(0)
}
func (m *mockPaymentStore) GetBySubRef(ctx context.Context, gw, subRef string) (*domain.PaymentRecord, error) {
	args := m.Called(ctx, gw, subRef)
	if rec, _ := args.Get(0).(*domain.PaymentRecord); rec != nil {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockEntitlementStore struct{ mock.Mock }

func (m *mockEntitlementStore) Put(ctx context.Context, e *domain.Entitlement) error {
	return m.Called(ctx, e).Error(0)
}
func (m *mockEntitlementStore) Latest(ctx context.Context, userID, videoID string) (*domain.Entitlement, error) {
	args := m.Called(ctx, userID, videoID)
	if e, _ := args.Get(0).(*domain.Entitlement); e != nil {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockEntitlementStore) ExpireLapsed(ctx context.Context, userID, videoID string, now time.Time) error {
	return m.Called(ctx, userID, videoID, now).Error(0)
}
func (m *mockEntitlementStore) RevokeByPayment(ctx context.Context, paymentID string, now time.Time) error {
	return m.Called(ctx, paymentID, now).Error(0)
}

type mockVideoStore struct{ mock.Mock }

func (m *mockVideoStore) Get(ctx context.Context, videoID string) (*domain.Video, error) {
	args := m.Called(ctx, videoID)
	if v, _ := args.Get(0).(*domain.Video); v != nil {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

// stubAdapter is a registry entry with scripted checkout and verify results.
type stubAdapter struct {
	id        string
	lastReq   domain.CheckoutRequest
	checkout  *domain.CheckoutResult
	verify    *domain.VerifyResult
	verifyErr error
}

func (a *stubAdapter) ID() string { return a.id }
func (a *stubAdapter) CreateCheckout(_ context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	a.lastReq = req
	return a.checkout, nil
}
func (a *stubAdapter) Verify(_ context.Context, _ string) (*domain.VerifyResult, error) {
	return a.verify, a.verifyErr
}

const testWebhookSecret = "whsec_test_secret"

type fixture struct {
	svc          Service
	payments     *mockPaymentStore
	entitlements *mockEntitlementStore
	videos       *mockVideoStore
	adapter      *stubAdapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		payments:     &mockPaymentStore{},
		entitlements: &mockEntitlementStore{},
		videos:       &mockVideoStore{},
		adapter:      &stubAdapter{id: "stub"},
	}
	reg := gateway.NewRegistry()
	reg.Register(f.adapter)
	f.svc = NewService(f.payments, f.entitlements, f.videos, reg,
		"https://api.example.com", testWebhookSecret, nil, nil)
	return f
}

func session() *domain.Session {
	return &domain.Session{UserID: "user_1", Email: "a@b.com", Kind: domain.SessionAccess}
}

func TestCreateCheckout_RecordsPendingPayment(t *testing.T) {
	f := newFixture(t)
	f.adapter.checkout = &domain.CheckoutResult{URL: "https://pay.example/x", OrderID: "ord_1"}
	f.videos.On("Get", mock.Anything, "vid_1").Return(nil, domain.ErrNotFound)
	f.payments.On("Upsert", mock.Anything, mock.MatchedBy(func(p *domain.PaymentRecord) bool {
		return p.Gateway == "stub" && p.GatewayRef == "ord_1" &&
			p.Status == domain.PaymentPending && p.UserID == "user_1" && p.VideoID == "vid_1"
	})).Return(&domain.PaymentRecord{PaymentID: "pay_1"}, nil)

	res, err := f.svc.CreateCheckout(context.Background(), session(), "stub", "vid_1", CheckoutOptions{})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/x", res.URL)

	// Default return URLs point at the popup bridge page.
	assert.Equal(t, "https://api.example.com/rentals/return?rental=success&popup=1", f.adapter.lastReq.ReturnURL)
	assert.Equal(t, "https://api.example.com/rentals/return?rental=cancel&popup=1", f.adapter.lastReq.CancelURL)
	assert.Equal(t, "a@b.com", f.adapter.lastReq.UserEmail)
	f.payments.AssertExpectations(t)
}

func TestCreateCheckout_UnknownGateway(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateCheckout(context.Background(), session(), "nope", "vid_1", CheckoutOptions{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestConfirmOrder_PaidIssuesEntitlement(t *testing.T) {
	f := newFixture(t)
	f.adapter.verify = &domain.VerifyResult{
		Paid: true, Status: "PAID", AmountCents: 2500, Currency: "USD",
		UserID: "user_1", VideoID: "vid_1", RentalDurationHours: 48,
	}
	f.payments.On("Upsert", mock.Anything, mock.MatchedBy(func(p *domain.PaymentRecord) bool {
		return p.Status == domain.PaymentSucceeded && p.GatewayRef == "ord_1"
	})).Return(&domain.PaymentRecord{PaymentID: "pay_1", UserID: "user_1", VideoID: "vid_1"}, nil)
	f.entitlements.On("ExpireLapsed", mock.Anything, "user_1", "vid_1", mock.Anything).Return(nil)
	f.entitlements.On("Put", mock.Anything, mock.MatchedBy(func(e *domain.Entitlement) bool {
		return e.Status == domain.EntitlementActive &&
			e.SourcePaymentID == "pay_1" &&
			e.UserVideo == "user_1#vid_1"
	})).Return(nil)

	out, err := f.svc.ConfirmOrder(context.Background(), "stub", "ord_1")
	require.NoError(t, err)
	assert.True(t, out.Paid)
	require.NotNil(t, out.Entitlement)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), out.Entitlement.ExpiresAt, 5*time.Second)
	f.entitlements.AssertExpectations(t)
}

func TestConfirmOrder_NotPaidChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.adapter.verify = &domain.VerifyResult{Paid: false, Status: "ACTIVE"}

	out, err := f.svc.ConfirmOrder(context.Background(), "stub", "ord_1")
	require.NoError(t, err)
	assert.False(t, out.Paid)
	assert.Equal(t, "ACTIVE", out.Status)
	assert.Nil(t, out.Entitlement)
	f.payments.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	f.entitlements.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestEntitlement_NoRows(t *testing.T) {
	f := newFixture(t)
	f.entitlements.On("ExpireLapsed", mock.Anything, "user_1", "vid_1", mock.Anything).Return(nil)
	f.entitlements.On("Latest", mock.Anything, "user_1", "vid_1").Return(nil, domain.ErrNotFound)

	st, err := f.svc.Entitlement(context.Background(), "user_1", "vid_1")
	require.NoError(t, err)
	assert.False(t, st.Entitled)
	assert.Nil(t, st.ExpiresAt)
}

func TestEntitlement_ActiveRow(t *testing.T) {
	f := newFixture(t)
	exp := time.Now().UTC().Add(time.Hour)
	f.entitlements.On("ExpireLapsed", mock.Anything, "user_1", "vid_1", mock.Anything).Return(nil)
	f.entitlements.On("Latest", mock.Anything, "user_1", "vid_1").Return(&domain.Entitlement{
		Status: domain.EntitlementActive, ExpiresAt: exp,
	}, nil)

	st, err := f.svc.Entitlement(context.Background(), "user_1", "vid_1")
	require.NoError(t, err)
	assert.True(t, st.Entitled)
	require.NotNil(t, st.ExpiresAt)
	assert.Equal(t, exp, *st.ExpiresAt)
}

func TestEntitlement_LapsedRow(t *testing.T) {
	f := newFixture(t)
	f.entitlements.On("ExpireLapsed", mock.Anything, "user_1", "vid_1", mock.Anything).Return(nil)
	f.entitlements.On("Latest", mock.Anything, "user_1", "vid_1").Return(&domain.Entitlement{
		Status: domain.EntitlementActive, ExpiresAt: time.Now().UTC().Add(-time.Minute),
	}, nil)

	st, err := f.svc.Entitlement(context.Background(), "user_1", "vid_1")
	require.NoError(t, err)
	assert.False(t, st.Entitled)
}

// signedPayload builds a Stripe-Signature header over the exact payload.
func signedPayload(t *testing.T, payload []byte) string {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testWebhookSecret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func stripeEvent(t *testing.T, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id":          "evt_test",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return raw
}

func TestHandleStripeWebhook_BadSignature(t *testing.T) {
	f := newFixture(t)
	payload := stripeEvent(t, "checkout.session.completed", map[string]interface{}{"id": "cs_1"})

	err := f.svc.HandleStripeWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
	f.payments.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestHandleStripeWebhook_CheckoutCompleted(t *testing.T) {
	f := newFixture(t)
	f.payments.On("Upsert", mock.Anything, mock.MatchedBy(func(p *domain.PaymentRecord) bool {
		return p.Gateway == gateway.StripeID && p.GatewayRef == "cs_1" &&
			p.Status == domain.PaymentSucceeded && p.AmountCents == 2500
	})).Return(&domain.PaymentRecord{PaymentID: "pay_1", UserID: "u1", VideoID: "v1"}, nil)
	f.payments.On("SetSubRef", mock.Anything, gateway.StripeID, "cs_1", "pi_1").Return(nil)
	f.entitlements.On("ExpireLapsed", mock.Anything, "u1", "v1", mock.Anything).Return(nil)
	f.entitlements.On("Put", mock.Anything, mock.Anything).Return(nil)

	payload := stripeEvent(t, "checkout.session.completed", map[string]interface{}{
		"id":             "cs_1",
		"payment_status": "paid",
		"amount_total":   2500,
		"currency":       "usd",
		"payment_intent": "pi_1",
		"metadata": map[string]string{
			"userId": "u1", "videoId": "v1", "rentalDurationHours": "48",
		},
	})

	err := f.svc.HandleStripeWebhook(context.Background(), payload, signedPayload(t, payload))
	require.NoError(t, err)
	f.payments.AssertExpectations(t)
	f.entitlements.AssertExpectations(t)
}

func TestHandleStripeWebhook_RefundRevokes(t *testing.T) {
	f := newFixture(t)
	f.payments.On("GetBySubRef", mock.Anything, gateway.StripeID, "pi_1").Return(&domain.PaymentRecord{
		PaymentID: "pay_1", Gateway: gateway.StripeID, GatewayRef: "cs_1",
		UserID: "u1", VideoID: "v1", Status: domain.PaymentSucceeded,
	}, nil)
	f.payments.On("Upsert", mock.Anything, mock.MatchedBy(func(p *domain.PaymentRecord) bool {
		return p.Status == domain.PaymentRefunded
	})).Return(&domain.PaymentRecord{PaymentID: "pay_1"}, nil)
	f.entitlements.On("RevokeByPayment", mock.Anything, "pay_1", mock.Anything).Return(nil)

	payload := stripeEvent(t, "charge.refunded", map[string]interface{}{
		"id": "ch_1", "payment_intent": "pi_1",
	})

	err := f.svc.HandleStripeWebhook(context.Background(), payload, signedPayload(t, payload))
	require.NoError(t, err)
	f.entitlements.AssertExpectations(t)
}

func TestHandleStripeWebhook_UnmatchedRefundIsNoop(t *testing.T) {
	f := newFixture(t)
	f.payments.On("GetBySubRef", mock.Anything, gateway.StripeID, "pi_unknown").Return(nil, domain.ErrNotFound)

	payload := stripeEvent(t, "charge.refunded", map[string]interface{}{
		"id": "ch_1", "payment_intent": "pi_unknown",
	})

	err := f.svc.HandleStripeWebhook(context.Background(), payload, signedPayload(t, payload))
	require.NoError(t, err)
	f.payments.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	f.entitlements.AssertNotCalled(t, "RevokeByPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleStripeWebhook_UnhandledEventAcknowledged(t *testing.T) {
	f := newFixture(t)
	payload := stripeEvent(t, "invoice.created", map[string]interface{}{"id": "in_1"})

	err := f.svc.HandleStripeWebhook(context.Background(), payload, signedPayload(t, payload))
	assert.NoError(t, err)
}

func TestSimulate_IssuesEntitlement(t *testing.T) {
	f := newFixture(t)
	f.videos.On("Get", mock.Anything, "vid_1").Return(nil, domain.ErrNotFound)
	f.payments.On("Upsert", mock.Anything, mock.MatchedBy(func(p *domain.PaymentRecord) bool {
		return p.Gateway == gateway.MockID && p.Status == domain.PaymentSucceeded
	})).Return(&domain.PaymentRecord{PaymentID: "pay_sim", UserID: "u1", VideoID: "vid_1"}, nil)
	f.entitlements.On("ExpireLapsed", mock.Anything, "u1", "vid_1", mock.Anything).Return(nil)
	f.entitlements.On("Put", mock.Anything, mock.Anything).Return(nil)

	ent, err := f.svc.Simulate(context.Background(), "u1", "vid_1")
	require.NoError(t, err)
	assert.Equal(t, "pay_sim", ent.SourcePaymentID)
}
