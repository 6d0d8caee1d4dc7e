// Package rental orchestrates the paid-unlock flow: checkout creation through
// a gateway adapter, settlement confirmation (synchronous verify or webhook),
// the durable payment record, and the entitlement ledger that playback
// authorization reads from.
package rental

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/rental-gate-api/internal/domain"
	"github.com/rental-gate-api/internal/gateway"
	s3infra "github.com/rental-gate-api/internal/infrastructure/s3"
	"github.com/rental-gate-api/internal/infrastructure/sns"
	"github.com/rental-gate-api/internal/pkg/id"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// PaywallConfig is served to the playback surface before any gating decision.
type PaywallConfig struct {
	Gateways            []string `json:"gateways"`
	VideoID             string   `json:"videoId"`
	Title               string   `json:"title"`
	PriceCents          int64    `json:"priceCents"`
	Currency            string   `json:"currency"`
	RentalDurationHours int      `json:"rentalDurationHours"`
	FreeDurationSeconds int      `json:"freeDurationSeconds"`
}

// EntitlementStatus is the playback authorization answer for one (user, video).
type EntitlementStatus struct {
	Entitled  bool       `json:"entitled"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// ConfirmOutcome reports a synchronous settlement check. Entitlement is set
// only when the order verified as paid.
type ConfirmOutcome struct {
	Paid        bool                `json:"paid"`
	Status      string              `json:"status"`
	Entitlement *domain.Entitlement `json:"entitlement,omitempty"`
}

// CheckoutOptions carries client-supplied overrides for the redirect
// targets. Empty fields fall back to the server's own popup bridge page.
type CheckoutOptions struct {
	SuccessURL string
	CancelURL  string
}

type Service interface {
	Config(ctx context.Context, videoID string) (*PaywallConfig, error)
	CreateCheckout(ctx context.Context, sess *domain.Session, gatewayID, videoID string, opts CheckoutOptions) (*domain.CheckoutResult, error)
	ConfirmOrder(ctx context.Context, gatewayID, orderID string) (*ConfirmOutcome, error)
	Entitlement(ctx context.Context, userID, videoID string) (*EntitlementStatus, error)
	HandleStripeWebhook(ctx context.Context, payload []byte, sigHeader string) error
	Simulate(ctx context.Context, userID, videoID string) (*domain.Entitlement, error)
}

// PaymentStore is the slice of the payment repository the rental flow needs.
type PaymentStore interface {
	Upsert(ctx context.Context, p *domain.PaymentRecord) (*domain.PaymentRecord, error)
	SetSubRef(ctx context.Context, gateway, gatewayRef, subRef string) error
	GetBySubRef(ctx context.Context, gateway, subRef string) (*domain.PaymentRecord, error)
}

// EntitlementStore is the slice of the entitlement ledger the rental flow needs.
type EntitlementStore interface {
	Put(ctx context.Context, e *domain.Entitlement) error
	Latest(ctx context.Context, userID, videoID string) (*domain.Entitlement, error)
	ExpireLapsed(ctx context.Context, userID, videoID string, now time.Time) error
	RevokeByPayment(ctx context.Context, paymentID string, now time.Time) error
}

// VideoStore answers catalog lookups; misses fall back to default pricing.
type VideoStore interface {
	Get(ctx context.Context, videoID string) (*domain.Video, error)
}

type service struct {
	payments     PaymentStore
	entitlements EntitlementStore
	videos       VideoStore
	registry     *gateway.Registry

	appBaseURL    string
	webhookSecret string

	archive   *s3infra.Archive   // optional
	publisher sns.EventPublisher // optional
}

func NewService(
	payments PaymentStore,
	entitlements EntitlementStore,
	videos VideoStore,
	registry *gateway.Registry,
	appBaseURL string,
	webhookSecret string,
	archive *s3infra.Archive,
	publisher sns.EventPublisher,
) Service {
	return &service{
		payments:      payments,
		entitlements:  entitlements,
		videos:        videos,
		registry:      registry,
		appBaseURL:    strings.TrimRight(appBaseURL, "/"),
		webhookSecret: webhookSecret,
		archive:       archive,
		publisher:     publisher,
	}
}

func (s *service) Config(ctx context.Context, videoID string) (*PaywallConfig, error) {
	v := s.video(ctx, videoID)
	return &PaywallConfig{
		Gateways:            s.registry.IDs(),
		VideoID:             v.VideoID,
		Title:               v.Title,
		PriceCents:          v.PriceCents,
		Currency:            v.Currency,
		RentalDurationHours: v.RentalDurationHours,
		FreeDurationSeconds: v.FreeDurationSeconds,
	}, nil
}

// CreateCheckout builds a normalized checkout request from the catalog row
// and the session identity, dispatches it through the adapter registry, and
// records a pending payment row keyed by the provider's order reference.
func (s *service) CreateCheckout(ctx context.Context, sess *domain.Session, gatewayID, videoID string, opts CheckoutOptions) (*domain.CheckoutResult, error) {
	if videoID == "" {
		return nil, fmt.Errorf("videoId required: %w", domain.ErrBadRequest)
	}
	adapter, err := s.registry.Get(gatewayID)
	if err != nil {
		return nil, err
	}

	successURL := opts.SuccessURL
	if successURL == "" {
		successURL = s.returnURL("success")
	}
	cancelURL := opts.CancelURL
	if cancelURL == "" {
		cancelURL = s.returnURL("cancel")
	}

	v := s.video(ctx, videoID)
	req := domain.CheckoutRequest{
		UserID:              sess.UserID,
		VideoID:             v.VideoID,
		Title:               v.Title,
		AmountCents:         v.PriceCents,
		Currency:            v.Currency,
		RentalDurationHours: v.RentalDurationHours,
		ReturnURL:           successURL,
		CancelURL:           cancelURL,
		UserEmail:           sess.Email,
	}

	res, err := adapter.CreateCheckout(ctx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := s.payments.Upsert(ctx, &domain.PaymentRecord{
		PaymentID:   id.New(),
		Gateway:     gatewayID,
		GatewayRef:  res.OrderID,
		AmountCents: v.PriceCents,
		Currency:    v.Currency,
		Status:      domain.PaymentPending,
		UserID:      sess.UserID,
		VideoID:     v.VideoID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		slog.Warn("failed to record pending payment", "gateway", gatewayID, "order_id", res.OrderID, "err", err)
	}
	return res, nil
}

// ConfirmOrder settles an order through the adapter's synchronous check. Paid
// orders upsert the payment row to succeeded and issue the entitlement; the
// whole path is idempotent, so the popup bridge and a webhook can both land.
func (s *service) ConfirmOrder(ctx context.Context, gatewayID, orderID string) (*ConfirmOutcome, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order id required: %w", domain.ErrBadRequest)
	}
	verifier, err := s.registry.GetVerifier(gatewayID)
	if err != nil {
		return nil, err
	}

	res, err := verifier.Verify(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !res.Paid {
		return &ConfirmOutcome{Paid: false, Status: res.Status}, nil
	}

	ent, err := s.settle(ctx, gatewayID, orderID, "", res)
	if err != nil {
		return nil, err
	}
	return &ConfirmOutcome{Paid: true, Status: res.Status, Entitlement: ent}, nil
}

// Entitlement answers whether the user currently holds access. Lapsed active
// rows are flipped to expired first, so the answer and the ledger agree.
func (s *service) Entitlement(ctx context.Context, userID, videoID string) (*EntitlementStatus, error) {
	now := time.Now().UTC()
	if err := s.entitlements.ExpireLapsed(ctx, userID, videoID, now); err != nil {
		slog.Warn("failed to expire lapsed entitlements", "user_id", userID, "video_id", videoID, "err", err)
	}

	ent, err := s.entitlements.Latest(ctx, userID, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &EntitlementStatus{Entitled: false}, nil
		}
		return nil, err
	}
	if !ent.Entitled(now) {
		return &EntitlementStatus{Entitled: false}, nil
	}
	exp := ent.ExpiresAt
	return &EntitlementStatus{Entitled: true, ExpiresAt: &exp}, nil
}

// HandleStripeWebhook verifies the event signature against the raw body and
// applies the event. Unmatched refunds are acknowledged without any state
// change so the provider stops retrying.
func (s *service) HandleStripeWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		return fmt.Errorf("stripe webhook signature: %w: %v", domain.ErrSignatureInvalid, err)
	}

	s.archiveEvent(ctx, gateway.StripeID, event.ID, payload)

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout session: %w: %v", domain.ErrBadRequest, err)
		}
		return s.applyCheckoutCompleted(ctx, &sess, payload)

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return fmt.Errorf("decode charge: %w: %v", domain.ErrBadRequest, err)
		}
		return s.applyRefund(ctx, &ch)
	}

	// Unhandled event types are acknowledged.
	return nil
}

// Simulate issues a test entitlement without touching any provider. The
// transport layer only exposes it outside production.
func (s *service) Simulate(ctx context.Context, userID, videoID string) (*domain.Entitlement, error) {
	v := s.video(ctx, videoID)
	now := time.Now().UTC()
	rec, err := s.payments.Upsert(ctx, &domain.PaymentRecord{
		PaymentID:   id.New(),
		Gateway:     gateway.MockID,
		GatewayRef:  "sim_" + id.New(),
		AmountCents: 0,
		Currency:    v.Currency,
		Status:      domain.PaymentSucceeded,
		RawPayload:  `{"simulated":true}`,
		UserID:      userID,
		VideoID:     videoID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, rec, v.RentalDurationHours)
}

func (s *service) applyCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession, payload []byte) error {
	userID := sess.Metadata["userId"]
	videoID := sess.Metadata["videoId"]
	if userID == "" || videoID == "" {
		slog.Warn("checkout completed event without correlation metadata", "session_id", sess.ID)
		return nil
	}

	durationHours := 48
	fmt.Sscanf(sess.Metadata["rentalDurationHours"], "%d", &durationHours)

	res := &domain.VerifyResult{
		Paid:                true,
		Status:              string(sess.PaymentStatus),
		AmountCents:         sess.AmountTotal,
		Currency:            strings.ToUpper(string(sess.Currency)),
		UserID:              userID,
		VideoID:             videoID,
		RentalDurationHours: durationHours,
		RawPayload:          string(payload),
	}

	subRef := ""
	if sess.PaymentIntent != nil {
		subRef = sess.PaymentIntent.ID
	}
	_, err := s.settle(ctx, gateway.StripeID, sess.ID, subRef, res)
	return err
}

func (s *service) applyRefund(ctx context.Context, ch *stripe.Charge) error {
	if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
		return nil
	}
	rec, err := s.payments.GetBySubRef(ctx, gateway.StripeID, ch.PaymentIntent.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Warn("refund for unknown payment, ignoring", "payment_intent", ch.PaymentIntent.ID)
			s.notify(ctx, "Unmatched refund", "No payment record for intent "+ch.PaymentIntent.ID)
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	rec.Status = domain.PaymentRefunded
	rec.UpdatedAt = now
	if _, err := s.payments.Upsert(ctx, rec); err != nil {
		return err
	}
	if err := s.entitlements.RevokeByPayment(ctx, rec.PaymentID, now); err != nil {
		return err
	}
	s.notify(ctx, "Payment refunded",
		fmt.Sprintf("payment %s (user %s, video %s) refunded, access revoked", rec.PaymentID, rec.UserID, rec.VideoID))
	return nil
}

// settle is the single point where money turns into access: idempotent
// succeeded-payment upsert, optional sub-reference for refund correlation,
// then entitlement issuance.
func (s *service) settle(ctx context.Context, gatewayID, orderID, subRef string, res *domain.VerifyResult) (*domain.Entitlement, error) {
	now := time.Now().UTC()
	rec, err := s.payments.Upsert(ctx, &domain.PaymentRecord{
		PaymentID:   id.New(),
		Gateway:     gatewayID,
		GatewayRef:  orderID,
		AmountCents: res.AmountCents,
		Currency:    res.Currency,
		Status:      domain.PaymentSucceeded,
		RawPayload:  res.RawPayload,
		UserID:      res.UserID,
		VideoID:     res.VideoID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, err
	}
	if subRef != "" {
		if err := s.payments.SetSubRef(ctx, gatewayID, orderID, subRef); err != nil {
			slog.Warn("failed to store gateway sub-reference", "gateway", gatewayID, "order_id", orderID, "err", err)
		}
	}
	return s.issue(ctx, rec, res.RentalDurationHours)
}

// issue writes a fresh active row for the pair. Older lapsed rows are expired
// first; a concurrent duplicate issuance is harmless because reads take the
// newest row.
func (s *service) issue(ctx context.Context, rec *domain.PaymentRecord, durationHours int) (*domain.Entitlement, error) {
	now := time.Now().UTC()
	if err := s.entitlements.ExpireLapsed(ctx, rec.UserID, rec.VideoID, now); err != nil {
		slog.Warn("failed to expire lapsed entitlements", "user_id", rec.UserID, "video_id", rec.VideoID, "err", err)
	}

	if durationHours <= 0 {
		durationHours = 48
	}
	ent := &domain.Entitlement{
		EntitlementID:   id.New(),
		UserVideo:       domain.UserVideoKey(rec.UserID, rec.VideoID),
		UserID:          rec.UserID,
		VideoID:         rec.VideoID,
		Type:            "rental",
		StartsAt:        now,
		ExpiresAt:       now.Add(time.Duration(durationHours) * time.Hour),
		Status:          domain.EntitlementActive,
		SourcePaymentID: rec.PaymentID,
	}
	if err := s.entitlements.Put(ctx, ent); err != nil {
		return nil, err
	}
	return ent, nil
}

func (s *service) video(ctx context.Context, videoID string) *domain.Video {
	v, err := s.videos.Get(ctx, videoID)
	if err != nil {
		return domain.DefaultVideo(videoID)
	}
	return v
}

// returnURL is where providers send the popup after checkout. The query
// params are what the popup bridge parses into its postMessage envelope.
func (s *service) returnURL(outcome string) string {
	return s.appBaseURL + "/rentals/return?rental=" + url.QueryEscape(outcome) + "&popup=1"
}

func (s *service) archiveEvent(ctx context.Context, gatewayID, eventID string, payload []byte) {
	if s.archive == nil {
		return
	}
	if err := s.archive.StoreWebhookPayload(ctx, gatewayID, eventID, payload); err != nil {
		slog.Warn("failed to archive webhook payload", "gateway", gatewayID, "event_id", eventID, "err", err)
	}
}

func (s *service) notify(ctx context.Context, subject, message string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPaymentEvent(ctx, subject, message); err != nil {
		slog.Warn("failed to publish payment event", "subject", subject, "err", err)
	}
}
