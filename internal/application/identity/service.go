// Package identity implements passwordless email login. A six-digit code is
// mailed to the address, verified with a bounded number of attempts, and
// exchanged for a pair of opaque session tokens held server-side.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/rental-gate-api/internal/domain"
	"github.com/rental-gate-api/internal/infrastructure/kv"
	"github.com/rental-gate-api/internal/infrastructure/smtp"
	pkgtoken "github.com/rental-gate-api/internal/pkg/token"
	"github.com/rental-gate-api/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

const (
	otpTTL      = 5 * time.Minute
	maxRequests = 5

	accessTTL  = 24 * time.Hour
	refreshTTL = 7 * 24 * time.Hour
)

// TokenPair is what a successful verification or refresh hands back.
// ExpiresIn is the access token lifetime in seconds.
type TokenPair struct {
	AccessToken  string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int          `json:"expiresIn"`
	User         *domain.User `json:"user"`
}

type Service interface {
	RequestChallenge(ctx context.Context, email string) (expiresIn int, err error)
	VerifyChallenge(ctx context.Context, email, code string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
	RequireSession(ctx context.Context, accessToken string) (*domain.Session, error)
}

// UserStore is the slice of the user repository the identity flow needs.
type UserStore interface {
	Upsert(ctx context.Context, u *domain.User) error
}

type service struct {
	store  kv.Store
	users  UserStore
	mailer smtp.Mailer
}

func NewService(store kv.Store, users UserStore, mailer smtp.Mailer) Service {
	return &service{store: store, users: users, mailer: mailer}
}

// RequestChallenge issues a fresh code for the email. Each request burns one
// slot of the per-email budget; re-requesting replaces the code but carries
// the count forward, so cycling requests does not reset the limit until the
// live challenge window lapses.
func (s *service) RequestChallenge(ctx context.Context, email string) (int, error) {
	email = normalizeEmail(email)
	if !validate.Email(email) {
		return 0, fmt.Errorf("invalid email address: %w", domain.ErrBadRequest)
	}

	now := time.Now().UTC()
	attempts := 0
	if prev, err := s.getChallenge(ctx, email); err == nil && prev.ExpiresAt.After(now) {
		if prev.Attempts >= maxRequests {
			wait := int(prev.ExpiresAt.Sub(now).Seconds()) + 1
			return 0, &domain.RateLimitedError{RetryAfter: wait}
		}
		attempts = prev.Attempts
	}
	attempts++

	code, err := generateCode()
	if err != nil {
		return 0, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}

	ch := &domain.OtpChallenge{
		Email:     email,
		CodeHash:  string(hash),
		IssuedAt:  now,
		ExpiresAt: now.Add(otpTTL),
		Attempts:  attempts,
	}
	if err := s.putChallenge(ctx, ch); err != nil {
		return 0, err
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(otpTTL.Minutes()))
	if err := s.mailer.SendEmail(email, "Your verification code", body); err != nil {
		return 0, fmt.Errorf("send verification email: %w", err)
	}
	return int(otpTTL.Seconds()), nil
}

// VerifyChallenge checks the submitted code. Expiry is checked before the
// code itself, so an expired challenge reads as expired no matter what was
// typed. A wrong code leaves the challenge in place; the correct code still
// unlocks until the challenge itself lapses.
func (s *service) VerifyChallenge(ctx context.Context, email, code string) (*TokenPair, error) {
	email = normalizeEmail(email)

	ch, err := s.getChallenge(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("no pending verification for this email: %w", domain.ErrNotFound)
	}

	now := time.Now().UTC()
	if !ch.ExpiresAt.After(now) {
		if err := s.store.Delete(ctx, otpKey(email)); err != nil {
			slog.Warn("failed to delete expired challenge", "email", email, "err", err)
		}
		return nil, fmt.Errorf("verification code expired: %w", domain.ErrExpired)
	}

	if bcrypt.CompareHashAndPassword([]byte(ch.CodeHash), []byte(code)) != nil {
		return nil, fmt.Errorf("incorrect verification code: %w", domain.ErrUnauthenticated)
	}

	if err := s.store.Delete(ctx, otpKey(email)); err != nil {
		slog.Warn("failed to delete consumed challenge", "email", email, "err", err)
	}

	user := &domain.User{
		UserID:    UserIDForEmail(email),
		Email:     email,
		CreatedAt: now,
		LastLogin: now,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		slog.Warn("failed to persist user profile", "user_id", user.UserID, "err", err)
	}

	return s.issueTokens(ctx, user)
}

// Refresh exchanges a live refresh token for a new access token. The refresh
// token itself is not rotated; it stays valid until its own expiry.
func (s *service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	sess, err := s.getSession(ctx, refreshToken)
	if err != nil || sess.Kind != domain.SessionRefresh {
		return nil, fmt.Errorf("refresh token not recognized: %w", domain.ErrInvalidSession)
	}
	if sess.Expired(time.Now().UTC()) {
		return nil, fmt.Errorf("refresh token expired: %w", domain.ErrExpired)
	}

	user := &domain.User{UserID: sess.UserID, Email: sess.Email}
	access, err := s.putSession(ctx, user, domain.SessionAccess, accessTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int(accessTTL.Seconds()),
		User:         user,
	}, nil
}

// Logout discards the access session. Unknown tokens are a no-op so repeated
// logouts stay idempotent.
func (s *service) Logout(ctx context.Context, accessToken string) error {
	return s.store.Delete(ctx, sessKey(accessToken))
}

// RequireSession resolves a bearer token to its live access session.
func (s *service) RequireSession(ctx context.Context, accessToken string) (*domain.Session, error) {
	sess, err := s.getSession(ctx, accessToken)
	if err != nil || sess.Kind != domain.SessionAccess {
		return nil, fmt.Errorf("session not recognized: %w", domain.ErrInvalidSession)
	}
	if sess.Expired(time.Now().UTC()) {
		return nil, fmt.Errorf("session expired: %w", domain.ErrInvalidSession)
	}
	return sess, nil
}

func (s *service) issueTokens(ctx context.Context, user *domain.User) (*TokenPair, error) {
	access, err := s.putSession(ctx, user, domain.SessionAccess, accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.putSession(ctx, user, domain.SessionRefresh, refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(accessTTL.Seconds()),
		User:         user,
	}, nil
}

func (s *service) putSession(ctx context.Context, user *domain.User, kind string, ttl time.Duration) (string, error) {
	tok, err := pkgtoken.New(kind + "_")
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	sess := &domain.Session{
		Token:     tok,
		UserID:    user.UserID,
		Email:     user.Email,
		Kind:      kind,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	encoded, err := json.Marshal(sess)
	if err != nil {
		return "", err
	}
	if err := s.store.Set(ctx, sessKey(tok), encoded, ttl); err != nil {
		return "", err
	}
	return tok, nil
}

func (s *service) getSession(ctx context.Context, token string) (*domain.Session, error) {
	raw, err := s.store.Get(ctx, sessKey(token))
	if err != nil {
		return nil, err
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *service) getChallenge(ctx context.Context, email string) (*domain.OtpChallenge, error) {
	raw, err := s.store.Get(ctx, otpKey(email))
	if err != nil {
		return nil, err
	}
	var ch domain.OtpChallenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *service) putChallenge(ctx context.Context, ch *domain.OtpChallenge) error {
	encoded, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	ttl := time.Until(ch.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.store.Set(ctx, otpKey(ch.Email), encoded, ttl)
}

// UserIDForEmail derives a stable user id from a normalized email, so every
// login with the same address lands on the same user row without a lookup.
func UserIDForEmail(email string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(normalizeEmail(email)))
	var b strings.Builder
	for _, r := range encoded {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return "user_" + b.String()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func otpKey(email string) string  { return "otp:" + email }
func sessKey(token string) string { return "sess:" + token }
