package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rental-gate-api/internal/domain"
	"github.com/stripe/stripe-go/v76"
	stripeclient "github.com/stripe/stripe-go/v76/client"
)

const StripeID = "stripe"

// StripeAdapter implements the hosted-checkout-session flow. The client is
// redirected to a Stripe-hosted page; confirmation retrieves the session
// server-side and checks its payment status. The query-string claim of
// success on the return URL is never trusted on its own.
type StripeAdapter struct {
	api *stripeclient.API
}

// NewStripeAdapter returns NotConfigured when the secret key is absent.
func NewStripeAdapter(secretKey string) (*StripeAdapter, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key missing: %w", domain.ErrNotConfigured)
	}
	return &StripeAdapter{api: stripeclient.New(secretKey, nil)}, nil
}

func (a *StripeAdapter) ID() string { return StripeID }

func (a *StripeAdapter) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	// The {CHECKOUT_SESSION_ID} placeholder is filled in by Stripe on
	// redirect, so the popup bridge can hand the session id back for
	// server-side confirmation without waiting for the webhook.
	successURL := req.ReturnURL
	if strings.Contains(successURL, "?") {
		successURL += "&session_id={CHECKOUT_SESSION_ID}"
	} else {
		successURL += "?session_id={CHECKOUT_SESSION_ID}"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Rent: " + req.Title),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("userId", req.UserID)
	params.AddMetadata("videoId", req.VideoID)
	params.AddMetadata("rentalDurationHours", strconv.Itoa(req.RentalDurationHours))

	sess, err := a.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, &domain.GatewayError{Provider: StripeID, Err: err}
	}
	return &domain.CheckoutResult{URL: sess.URL, OrderID: sess.ID, SessionID: sess.ID}, nil
}

// Verify retrieves the checkout session and reports whether it is paid,
// together with the amount and correlation metadata stamped at creation.
func (a *StripeAdapter) Verify(ctx context.Context, sessionID string) (*domain.VerifyResult, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := a.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, &domain.GatewayError{Provider: StripeID, Err: err}
	}

	paid := sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		sess.Status == stripe.CheckoutSessionStatusComplete

	durationHours := 48
	if v, err := strconv.Atoi(sess.Metadata["rentalDurationHours"]); err == nil && v > 0 {
		durationHours = v
	}
	return &domain.VerifyResult{
		Paid:                paid,
		Status:              string(sess.PaymentStatus),
		AmountCents:         sess.AmountTotal,
		Currency:            strings.ToUpper(string(sess.Currency)),
		UserID:              sess.Metadata["userId"],
		VideoID:             sess.Metadata["videoId"],
		RentalDurationHours: durationHours,
		RawPayload:          string(sess.LastResponse.RawJSON),
	}, nil
}
