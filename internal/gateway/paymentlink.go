package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rental-gate-api/internal/domain"
)

// PaymentLinkConfig describes a provider that exposes a single
// create-payment-link endpoint. Request and response mapping are supplied as
// functions so a new provider of this shape needs configuration, not code.
type PaymentLinkConfig struct {
	Name     string
	Endpoint string
	Method   string
	Headers  map[string]string

	// MapRequest serializes a checkout request into the provider's wire
	// format. MapResponse extracts the hosted payment URL and the provider's
	// order reference from the raw response body.
	MapRequest  func(req domain.CheckoutRequest) ([]byte, error)
	MapResponse func(body []byte) (link, orderID string, err error)
}

// PaymentLinkAdapter is a generic adapter for link-based providers whose
// settlement is confirmed exclusively by webhook. It does not implement
// Verifier.
type PaymentLinkAdapter struct {
	cfg  PaymentLinkConfig
	http *http.Client
}

func NewPaymentLinkAdapter(cfg PaymentLinkConfig) (*PaymentLinkAdapter, error) {
	if cfg.Name == "" || cfg.Endpoint == "" {
		return nil, fmt.Errorf("payment link adapter needs a name and endpoint: %w", domain.ErrNotConfigured)
	}
	if cfg.MapRequest == nil || cfg.MapResponse == nil {
		return nil, fmt.Errorf("payment link adapter %q needs request and response mappers: %w", cfg.Name, domain.ErrNotConfigured)
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	return &PaymentLinkAdapter{cfg: cfg, http: &http.Client{Timeout: 15 * time.Second}}, nil
}

func (a *PaymentLinkAdapter) ID() string { return a.cfg.Name }

func (a *PaymentLinkAdapter) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	payload, err := a.cfg.MapRequest(req)
	if err != nil {
		return nil, &domain.GatewayError{Provider: a.cfg.Name, Err: fmt.Errorf("map request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, a.cfg.Method, a.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.GatewayError{Provider: a.cfg.Name, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, &domain.GatewayError{Provider: a.cfg.Name, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.GatewayError{Provider: a.cfg.Name, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.GatewayError{
			Provider: a.cfg.Name,
			Status:   resp.StatusCode,
			RawBody:  string(raw),
			Err:      fmt.Errorf("provider returned %d", resp.StatusCode),
		}
	}

	link, orderID, err := a.cfg.MapResponse(raw)
	if err != nil || link == "" {
		if err == nil {
			err = fmt.Errorf("response carried no payment link")
		}
		return nil, &domain.GatewayError{Provider: a.cfg.Name, Status: resp.StatusCode, RawBody: string(raw), Err: err}
	}
	return &domain.CheckoutResult{URL: link, OrderID: orderID}, nil
}
