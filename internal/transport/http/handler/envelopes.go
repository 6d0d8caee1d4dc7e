package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rental-gate-api/internal/domain"
)

// ErrorEnvelope is the uniform error response: a human-readable message and a
// machine code the playback surface switches on. RetryAfter is set only on
// rate-limit responses.
type ErrorEnvelope struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorEnvelope{Error: msg, Code: code})
}

// writeDomainError maps a wrapped sentinel to its HTTP shape. Handlers that
// need flow-specific codes (the OTP ones) map explicitly before falling back
// to this.
func writeDomainError(w http.ResponseWriter, err error) {
	var rl *domain.RateLimitedError
	if errors.As(err, &rl) {
		writeJSON(w, http.StatusTooManyRequests, ErrorEnvelope{
			Error:      err.Error(),
			Code:       "RATE_LIMITED",
			RetryAfter: rl.RetryAfter,
		})
		return
	}

	var ge *domain.GatewayError
	if errors.As(err, &ge) {
		// RawBody stays in the server log; the client gets a generic message.
		writeError(w, http.StatusBadGateway, "GATEWAY_ERROR", "payment provider error, please retry")
		return
	}

	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
	case errors.Is(err, domain.ErrInvalidSession):
		writeError(w, http.StatusUnauthorized, "INVALID_SESSION", err.Error())
	case errors.Is(err, domain.ErrExpired):
		writeError(w, http.StatusUnauthorized, "EXPIRED", err.Error())
	case errors.Is(err, domain.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "this payment method is not configured")
	case errors.Is(err, domain.ErrSignatureInvalid):
		writeError(w, http.StatusBadRequest, "SIGNATURE_INVALID", "signature verification failed")
	default:
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "internal server error")
	}
}
