package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rental-gate-api/internal/application/rental"
	"github.com/rental-gate-api/internal/gateway"
	"github.com/rental-gate-api/internal/pkg/validate"
	"github.com/rental-gate-api/internal/transport/http/middleware"
)

type checkoutSessionBody struct {
	VideoID    string `json:"videoId" validate:"required"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

type confirmBody struct {
	SessionID string `json:"sessionId" validate:"required"`
}

type orderBody struct {
	VideoID   string `json:"videoId" validate:"required"`
	ReturnURL string `json:"returnUrl"`
}

type simulateBody struct {
	UserID  string `json:"userId" validate:"required"`
	VideoID string `json:"videoId" validate:"required"`
}

// RentalHandler exposes checkout, settlement confirmation and entitlement
// lookup for the playback surface.
type RentalHandler struct {
	svc rental.Service
}

func NewRentalHandler(svc rental.Service) *RentalHandler {
	return &RentalHandler{svc: svc}
}

// Config serves the paywall configuration for a video: registered gateways,
// price and the free preview length.
func (h *RentalHandler) Config(w http.ResponseWriter, r *http.Request) {
	videoID := r.URL.Query().Get("videoId")
	cfg, err := h.svc.Config(r.Context(), videoID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// CheckoutSession starts a hosted checkout. The user comes from the
// authenticated session, never from the body.
func (h *RentalHandler) CheckoutSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_SESSION", "authentication required")
		return
	}
	var body checkoutSessionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || validate.Struct(body) != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "videoId is required")
		return
	}

	res, err := h.svc.CreateCheckout(r.Context(), sess, gateway.StripeID, body.VideoID, rental.CheckoutOptions{
		SuccessURL: body.SuccessURL,
		CancelURL:  body.CancelURL,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": res.URL, "id": res.SessionID})
}

// Confirm settles a hosted checkout from the popup bridge. Not-paid is a 400
// so the client returns to the gated state instead of unlocking.
func (h *RentalHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var body confirmBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || validate.Struct(body) != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "sessionId is required")
		return
	}

	out, err := h.svc.ConfirmOrder(r.Context(), gateway.StripeID, body.SessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !out.Paid {
		writeError(w, http.StatusBadRequest, "NOT_PAID", "checkout session is not paid")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// Order starts an order-poll checkout and hands back the hosted payment link
// plus the facts the paywall renders while polling.
func (h *RentalHandler) Order(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_SESSION", "authentication required")
		return
	}
	var body orderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || validate.Struct(body) != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "videoId is required")
		return
	}

	res, err := h.svc.CreateCheckout(r.Context(), sess, gateway.CashfreeID, body.VideoID, rental.CheckoutOptions{
		SuccessURL: body.ReturnURL,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	cfg, err := h.svc.Config(r.Context(), body.VideoID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"paymentLink":         res.URL,
		"orderId":             res.OrderID,
		"sessionId":           res.SessionID,
		"rentalDurationHours": cfg.RentalDurationHours,
		"title":               cfg.Title,
	})
}

// Verify polls the provider for order settlement and issues the entitlement
// when it reports paid.
func (h *RentalHandler) Verify(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "orderId is required")
		return
	}

	out, err := h.svc.ConfirmOrder(r.Context(), gateway.CashfreeID, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"paid":   out.Paid,
		"status": out.Status,
	})
}

// GenericCheckout dispatches to any registered adapter by path parameter, for
// providers beyond the two first-class ones.
func (h *RentalHandler) GenericCheckout(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_SESSION", "authentication required")
		return
	}
	gatewayID := chi.URLParam(r, "gateway")

	var body checkoutSessionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || validate.Struct(body) != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "videoId is required")
		return
	}

	res, err := h.svc.CreateCheckout(r.Context(), sess, gatewayID, body.VideoID, rental.CheckoutOptions{
		SuccessURL: body.SuccessURL,
		CancelURL:  body.CancelURL,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Entitlement answers the playback authorization question.
func (h *RentalHandler) Entitlement(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	videoID := r.URL.Query().Get("videoId")
	if userID == "" || videoID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "userId and videoId are required")
		return
	}

	status, err := h.svc.Entitlement(r.Context(), userID, videoID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Simulate issues a test entitlement. The route is only mounted outside
// production.
func (h *RentalHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var body simulateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || validate.Struct(body) != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "userId and videoId are required")
		return
	}

	ent, err := h.svc.Simulate(r.Context(), body.UserID, body.VideoID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "entitlement": ent})
}
