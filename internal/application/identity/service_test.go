package identity

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/rental-gate-api/internal/domain"
	"github.com/rental-gate-api/internal/infrastructure/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeMailer struct {
	to   string
	body string
	err  error
}

func (m *fakeMailer) SendEmail(to, _, body string) error {
	m.to, m.body = to, body
	return m.err
}

type fakeUserStore struct {
	upserts []*domain.User
	err     error
}

func (s *fakeUserStore) Upsert(_ context.Context, u *domain.User) error {
	s.upserts = append(s.upserts, u)
	return s.err
}

var codeRe = regexp.MustCompile(`\d{6}`)

func newTestService() (Service, *fakeMailer, *fakeUserStore, kv.Store) {
	store := kv.NewMemoryStore()
	mailer := &fakeMailer{}
	users := &fakeUserStore{}
	return NewService(store, users, mailer), mailer, users, store
}

func TestRequestChallenge_InvalidEmail(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.RequestChallenge(context.Background(), "not-an-email")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestRequestChallenge_SendsCode(t *testing.T) {
	svc, mailer, _, _ := newTestService()

	expiresIn, err := svc.RequestChallenge(context.Background(), "A@B.com")
	require.NoError(t, err)
	assert.Equal(t, 300, expiresIn)
	assert.Equal(t, "a@b.com", mailer.to)
	assert.Regexp(t, codeRe, mailer.body)
}

func TestRequestChallenge_RateLimitsAfterBudget(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.RequestChallenge(ctx, "a@b.com")
		require.NoError(t, err, "request %d should still be within budget", i+1)
	}

	_, err := svc.RequestChallenge(ctx, "a@b.com")
	require.ErrorIs(t, err, domain.ErrRateLimited)

	var rl *domain.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Greater(t, rl.RetryAfter, 0)
	assert.LessOrEqual(t, rl.RetryAfter, 301)
}

func TestVerifyChallenge_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.VerifyChallenge(context.Background(), "a@b.com", "123456")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyChallenge_ExpiredBeatsInvalid(t *testing.T) {
	svc, _, _, store := newTestService()
	ctx := context.Background()

	// Plant an already-lapsed challenge; even a wrong code must read as
	// expired, not invalid.
	ch := &domain.OtpChallenge{
		Email:     "a@b.com",
		CodeHash:  "$2a$10$invalidhashinvalidhashinvalidhashinvalidhashinvalid",
		IssuedAt:  time.Now().UTC().Add(-10 * time.Minute),
		ExpiresAt: time.Now().UTC().Add(-5 * time.Minute),
	}
	raw, err := json.Marshal(ch)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "otp:a@b.com", raw, time.Minute))

	_, err = svc.VerifyChallenge(ctx, "a@b.com", "000000")
	assert.ErrorIs(t, err, domain.ErrExpired)

	// The lapsed challenge is consumed.
	_, err = svc.VerifyChallenge(ctx, "a@b.com", "000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyChallenge_WrongThenRight(t *testing.T) {
	svc, mailer, users, _ := newTestService()
	ctx := context.Background()

	_, err := svc.RequestChallenge(ctx, "a@b.com")
	require.NoError(t, err)

	code := codeRe.FindString(mailer.body)
	require.NotEmpty(t, code)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	_, err = svc.VerifyChallenge(ctx, "a@b.com", wrong)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	// The wrong guess must not have consumed the challenge.
	pair, err := svc.VerifyChallenge(ctx, "a@b.com", code)
	require.NoError(t, err)
	assert.Equal(t, 86400, pair.ExpiresIn)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, "a@b.com", pair.User.Email)
	assert.Equal(t, UserIDForEmail("a@b.com"), pair.User.UserID)

	require.Len(t, users.upserts, 1)

	// The code is single-use.
	_, err = svc.VerifyChallenge(ctx, "a@b.com", code)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyChallenge_UserUpsertFailureIsSwallowed(t *testing.T) {
	svc, mailer, users, _ := newTestService()
	users.err = errors.New("dynamo down")
	ctx := context.Background()

	_, err := svc.RequestChallenge(ctx, "a@b.com")
	require.NoError(t, err)

	pair, err := svc.VerifyChallenge(ctx, "a@b.com", codeRe.FindString(mailer.body))
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
}

func TestSessionLifecycle(t *testing.T) {
	svc, mailer, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.RequestChallenge(ctx, "a@b.com")
	require.NoError(t, err)
	pair, err := svc.VerifyChallenge(ctx, "a@b.com", codeRe.FindString(mailer.body))
	require.NoError(t, err)

	sess, err := svc.RequireSession(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, pair.User.UserID, sess.UserID)
	assert.Equal(t, domain.SessionAccess, sess.Kind)

	// A refresh token is not an access session.
	_, err = svc.RequireSession(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	refreshed, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, refreshed.AccessToken)
	assert.Equal(t, pair.RefreshToken, refreshed.RefreshToken)

	_, err = svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	require.NoError(t, svc.Logout(ctx, pair.AccessToken))
	_, err = svc.RequireSession(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	// Logging out twice is fine.
	assert.NoError(t, svc.Logout(ctx, pair.AccessToken))
}

func TestUserIDForEmail_StableAndClean(t *testing.T) {
	a := UserIDForEmail("A@B.com")
	b := UserIDForEmail("  a@b.com ")
	assert.Equal(t, a, b)
	assert.Regexp(t, `^user_[A-Za-z0-9]+$`, a)
}
