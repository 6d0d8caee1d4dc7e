package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/rental-gate-api/internal/application/identity"
	"github.com/rental-gate-api/internal/domain"
	"github.com/rental-gate-api/internal/infrastructure/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureMailer struct{ body string }

func (m *captureMailer) SendEmail(_, _, body string) error {
	m.body = body
	return nil
}

type nopUserStore struct{}

func (nopUserStore) Upsert(context.Context, *domain.User) error { return nil }

var otpRe = regexp.MustCompile(`\d{6}`)

func newAuthFixture() (*AuthHandler, *captureMailer) {
	mailer := &captureMailer{}
	svc := identity.NewService(kv.NewMemoryStore(), nopUserStore{}, mailer)
	return NewAuthHandler(svc), mailer
}

func postJSON(t *testing.T, h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRequestOtp_InvalidEmail(t *testing.T) {
	h, _ := newAuthFixture()

	rec := postJSON(t, h.RequestOtp, "/auth/request-otp", `{"email":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_EMAIL", decodeBody(t, rec)["code"])

	rec = postJSON(t, h.RequestOtp, "/auth/request-otp", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_EMAIL", decodeBody(t, rec)["code"])
}

func TestRequestOtp_RateLimitedEnvelope(t *testing.T) {
	h, _ := newAuthFixture()

	for i := 0; i < 5; i++ {
		rec := postJSON(t, h.RequestOtp, "/auth/request-otp", `{"email":"a@b.com"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := postJSON(t, h.RequestOtp, "/auth/request-otp", `{"email":"a@b.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.Greater(t, body["retryAfter"].(float64), float64(0))
}

func TestOtpFlow_EndToEnd(t *testing.T) {
	h, mailer := newAuthFixture()

	rec := postJSON(t, h.RequestOtp, "/auth/request-otp", `{"email":"A@B.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "a@b.com", body["email"])

	code := otpRe.FindString(mailer.body)
	require.NotEmpty(t, code)

	rec = postJSON(t, h.VerifyOtp, "/auth/verify-otp", `{"email":"a@b.com","otp":"999999"}`)
	if rec.Code == http.StatusOK {
		t.Fatal("wrong code must not verify")
	}
	assert.Equal(t, "OTP_INVALID", decodeBody(t, rec)["code"])

	rec = postJSON(t, h.VerifyOtp, "/auth/verify-otp", `{"email":"a@b.com","otp":"`+code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, float64(86400), body["expiresIn"])
	assert.NotEmpty(t, body["sessionToken"])
	assert.NotEmpty(t, body["refreshToken"])
	assert.Equal(t, "a@b.com", body["email"])

	// Refresh mints a fresh access token on the same refresh token.
	refresh := body["refreshToken"].(string)
	rec = postJSON(t, h.Refresh, "/auth/refresh-token", `{"refreshToken":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	refreshed := decodeBody(t, rec)
	assert.NotEqual(t, body["sessionToken"], refreshed["sessionToken"])
	assert.Equal(t, refresh, refreshed["refreshToken"])

	// Logout by body token, twice.
	session := refreshed["sessionToken"].(string)
	rec = postJSON(t, h.Logout, "/auth/logout", `{"sessionToken":"`+session+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = postJSON(t, h.Logout, "/auth/logout", `{"sessionToken":"`+session+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyOtp_ErrorCodes(t *testing.T) {
	h, _ := newAuthFixture()

	rec := postJSON(t, h.VerifyOtp, "/auth/verify-otp", `{"email":"a@b.com","otp":"123456"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "OTP_NOT_FOUND", decodeBody(t, rec)["code"])

	rec = postJSON(t, h.VerifyOtp, "/auth/verify-otp", `{"email":"a@b.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeBody(t, rec)["code"])
}

func TestRefresh_ErrorCodes(t *testing.T) {
	h, _ := newAuthFixture()

	rec := postJSON(t, h.Refresh, "/auth/refresh-token", `{"refreshToken":"refresh_bogus"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", decodeBody(t, rec)["code"])
}
