package handler

import (
	"io"
	"net/http"

	"github.com/rental-gate-api/internal/application/rental"
)

// Provider webhook bodies are small; anything past this is rejected before
// signature verification even runs.
const maxWebhookBody = 1 << 20

// WebhookHandler is the asynchronous settlement intake.
type WebhookHandler struct {
	svc rental.Service
}

func NewWebhookHandler(svc rental.Service) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// Stripe verifies the event signature against the raw body and applies the
// event. The body must be read before any parsing touches it; the signature
// covers the exact bytes on the wire.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "unreadable body")
		return
	}

	if err := h.svc.HandleStripeWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
