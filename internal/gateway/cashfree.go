package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rental-gate-api/internal/domain"
	"github.com/rental-gate-api/internal/pkg/id"
)

const (
	CashfreeID         = "cashfree"
	cashfreeAPIVersion = "2022-09-01"
)

// CashfreeAdapter creates a payment order via the Cashfree PG API and hands
// the client a hosted payment-link URL. Confirmation polls the order status
// endpoint rather than trusting the redirect.
type CashfreeAdapter struct {
	appID     string
	secretKey string
	baseURL   string
	http      *http.Client
}

func NewCashfreeAdapter(appID, secretKey, baseURL string) (*CashfreeAdapter, error) {
	if appID == "" || secretKey == "" {
		return nil, fmt.Errorf("cashfree credentials missing: %w", domain.ErrNotConfigured)
	}
	if baseURL == "" {
		baseURL = "https://sandbox.cashfree.com"
	}
	return &CashfreeAdapter{
		appID:     appID,
		secretKey: secretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (a *CashfreeAdapter) ID() string { return CashfreeID }

type cashfreeOrderRequest struct {
	OrderID         string            `json:"order_id"`
	OrderAmount     float64           `json:"order_amount"`
	OrderCurrency   string            `json:"order_currency"`
	CustomerDetails cashfreeCustomer  `json:"customer_details"`
	OrderMeta       cashfreeOrderMeta `json:"order_meta"`
	OrderNote       string            `json:"order_note,omitempty"`
	OrderTags       map[string]string `json:"order_tags,omitempty"`
}

type cashfreeCustomer struct {
	CustomerID    string `json:"customer_id"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone"`
	CustomerName  string `json:"customer_name,omitempty"`
}

type cashfreeOrderMeta struct {
	ReturnURL string `json:"return_url"`
}

type cashfreeOrderResponse struct {
	OrderID          string            `json:"order_id"`
	OrderStatus      string            `json:"order_status"`
	OrderAmount      float64           `json:"order_amount"`
	OrderCurrency    string            `json:"order_currency"`
	PaymentSessionID string            `json:"payment_session_id"`
	PaymentLink      string            `json:"payment_link"`
	OrderTags        map[string]string `json:"order_tags"`
}

func (a *CashfreeAdapter) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	orderID := "order_" + id.New()

	// Live Cashfree rejects plain-http return URLs.
	returnURL := req.ReturnURL
	if !strings.Contains(a.baseURL, "sandbox") {
		returnURL = strings.Replace(returnURL, "http://", "https://", 1)
	}
	sep := "?"
	if strings.Contains(returnURL, "?") {
		sep = "&"
	}
	returnURL += sep + "order_id=" + url.QueryEscape(orderID)

	phone := req.UserPhone
	if phone == "" {
		phone = "9999999999"
	}

	body := cashfreeOrderRequest{
		OrderID:       orderID,
		OrderAmount:   float64(req.AmountCents) / 100,
		OrderCurrency: req.Currency,
		CustomerDetails: cashfreeCustomer{
			CustomerID:    req.UserID,
			CustomerEmail: req.UserEmail,
			CustomerPhone: phone,
			CustomerName:  req.UserName,
		},
		OrderMeta: cashfreeOrderMeta{ReturnURL: returnURL},
		OrderNote: "Rent: " + req.Title,
		OrderTags: map[string]string{
			"userId":              req.UserID,
			"videoId":             req.VideoID,
			"rentalDurationHours": fmt.Sprintf("%d", req.RentalDurationHours),
		},
	}

	var resp cashfreeOrderResponse
	raw, err := a.call(ctx, http.MethodPost, "/pg/orders", body, &resp)
	if err != nil {
		return nil, err
	}

	link := resp.PaymentLink
	if link == "" && resp.PaymentSessionID != "" {
		link = a.paymentOptionsURL(resp.PaymentSessionID)
	}
	if link == "" {
		return nil, &domain.GatewayError{
			Provider: CashfreeID,
			RawBody:  string(raw),
			Err:      fmt.Errorf("order created but no payment link or session id returned"),
		}
	}
	return &domain.CheckoutResult{URL: link, OrderID: resp.OrderID, SessionID: resp.PaymentSessionID}, nil
}

// Verify fetches the order and treats only status PAID as settled. ACTIVE
// means the customer has not completed payment yet.
func (a *CashfreeAdapter) Verify(ctx context.Context, orderID string) (*domain.VerifyResult, error) {
	var resp cashfreeOrderResponse
	raw, err := a.call(ctx, http.MethodGet, "/pg/orders/"+url.PathEscape(orderID), nil, &resp)
	if err != nil {
		return nil, err
	}

	durationHours := 48
	if v := resp.OrderTags["rentalDurationHours"]; v != "" {
		fmt.Sscanf(v, "%d", &durationHours)
	}
	return &domain.VerifyResult{
		Paid:                resp.OrderStatus == "PAID",
		Status:              resp.OrderStatus,
		AmountCents:         int64(resp.OrderAmount*100 + 0.5),
		Currency:            resp.OrderCurrency,
		UserID:              resp.OrderTags["userId"],
		VideoID:             resp.OrderTags["videoId"],
		RentalDurationHours: durationHours,
		RawPayload:          string(raw),
	}, nil
}

// paymentOptionsURL synthesizes the hosted payment page URL from a session id
// for API responses that omit payment_link. Sandbox orders stay on the
// sandbox host; everything else goes to the live payments host.
func (a *CashfreeAdapter) paymentOptionsURL(sessionID string) string {
	host := "https://payments.cashfree.com"
	if strings.Contains(a.baseURL, "sandbox") {
		host = "https://payments-test.cashfree.com"
	}
	return host + "/pg/view/paymentoptions?payment_session_id=" + url.QueryEscape(sessionID)
}

func (a *CashfreeAdapter) call(ctx context.Context, method, path string, body, out any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode cashfree request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build cashfree request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", a.appID)
	req.Header.Set("x-client-secret", a.secretKey)
	req.Header.Set("x-api-version", cashfreeAPIVersion)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, &domain.GatewayError{Provider: CashfreeID, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.GatewayError{Provider: CashfreeID, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.GatewayError{
			Provider: CashfreeID,
			Status:   resp.StatusCode,
			RawBody:  string(raw),
			Err:      fmt.Errorf("cashfree returned %d", resp.StatusCode),
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, &domain.GatewayError{Provider: CashfreeID, Status: resp.StatusCode, RawBody: string(raw), Err: err}
	}
	return raw, nil
}
