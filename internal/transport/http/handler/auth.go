package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rental-gate-api/internal/application/identity"
	"github.com/rental-gate-api/internal/domain"
	"github.com/rental-gate-api/internal/pkg/validate"
	"github.com/rental-gate-api/internal/transport/http/middleware"
)

type requestOtpBody struct {
	Email string `json:"email" validate:"required"`
}

type verifyOtpBody struct {
	Email string `json:"email" validate:"required"`
	OTP   string `json:"otp" validate:"required"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type logoutBody struct {
	SessionToken string `json:"sessionToken"`
}

// sessionEnvelope is the issued-identity response for verify and refresh.
type sessionEnvelope struct {
	Success      bool   `json:"success"`
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	SessionToken string `json:"sessionToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	ExpiresAt    string `json:"expiresAt"`
}

// AuthHandler exposes the passwordless login flow.
type AuthHandler struct {
	svc identity.Service
}

func NewAuthHandler(svc identity.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) RequestOtp(w http.ResponseWriter, r *http.Request) {
	var body requestOtpBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || validate.Struct(body) != nil {
		writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "a valid email address is required")
		return
	}

	expiresIn, err := h.svc.RequestChallenge(r.Context(), body.Email)
	if err != nil {
		if errors.Is(err, domain.ErrBadRequest) {
			writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "a valid email address is required")
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "verification code sent",
		"email":     strings.ToLower(strings.TrimSpace(body.Email)),
		"expiresIn": expiresIn,
	})
}

func (h *AuthHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var body verifyOtpBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || validate.Struct(body) != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "email and otp are required")
		return
	}

	pair, err := h.svc.VerifyChallenge(r.Context(), body.Email, body.OTP)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusBadRequest, "OTP_NOT_FOUND", "no pending verification for this email")
		case errors.Is(err, domain.ErrExpired):
			writeError(w, http.StatusBadRequest, "OTP_EXPIRED", "verification code expired, request a new one")
		case errors.Is(err, domain.ErrUnauthenticated):
			writeError(w, http.StatusBadRequest, "OTP_INVALID", "incorrect verification code")
		default:
			writeDomainError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, issuedSession(pair))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || validate.Struct(body) != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "refreshToken is required")
		return
	}

	pair, err := h.svc.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrExpired):
			writeError(w, http.StatusUnauthorized, "REFRESH_TOKEN_EXPIRED", "refresh token expired, log in again")
		case errors.Is(err, domain.ErrInvalidSession):
			writeError(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "refresh token not recognized")
		default:
			writeDomainError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, issuedSession(pair))
}

// Logout accepts the token either in the body or as the Bearer header.
// Always succeeds; logging out twice is not an error.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var body logoutBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	token := body.SessionToken
	if token == "" {
		token = bearerToken(r)
	}
	if token != "" {
		if err := h.svc.Logout(r.Context(), token); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "INVALID_SESSION", "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":    sess.UserID,
		"email":     sess.Email,
		"expiresAt": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func issuedSession(pair *identity.TokenPair) sessionEnvelope {
	expiresAt := time.Now().UTC().Add(time.Duration(pair.ExpiresIn) * time.Second)
	return sessionEnvelope{
		Success:      true,
		UserID:       pair.User.UserID,
		Email:        pair.User.Email,
		SessionToken: pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		ExpiresAt:    expiresAt.Format(time.RFC3339),
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
