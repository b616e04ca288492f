package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ziksir-notes/auth"
	"ziksir-notes/errs"
	"ziksir-notes/store"
)

// countingLimiter locks a key out after max failures.
type countingLimiter struct {
	max      int
	failures map[string]int
	err      error
}

func newCountingLimiter(max int) *countingLimiter {
	return &countingLimiter{max: max, failures: map[string]int{}}
}

func (l *countingLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	return l.failures[key] < l.max, nil
}

func (l *countingLimiter) Fail(_ context.Context, key string) error {
	l.failures[key]++
	return l.err
}

func (l *countingLimiter) Reset(_ context.Context, key string) error {
	delete(l.failures, key)
	return l.err
}

func newTestAuthService(limiter auth.LoginLimiter) (*AuthService, *auth.Issuer, *test.Hook) {
	log, hook := test.NewNullLogger()
	issuer := auth.NewIssuer("test-secret", time.Hour)
	svc := NewAuthService(store.NewMemoryStore(), issuer, auth.NewHasher(bcrypt.MinCost), limiter, logrus.NewEntry(log))
	return svc, issuer, hook
}

func TestRegister(t *testing.T) {
	svc, issuer, _ := newTestAuthService(nil)
	ctx := context.Background()

	session, err := svc.Register(ctx, "  A@X.com ", "pw1")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.NotEmpty(t, session.User.UserID)
	assert.Equal(t, "a@x.com", session.User.Email)

	id, err := issuer.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User, id)

	_, err = svc.Register(ctx, "a@x.com", "other")
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestAuthService(nil)

	tests := []struct {
		name     string
		email    string
		password string
		field    string
	}{
		{"missing email", "", "pw1", "email"},
		{"malformed email", "not-an-email", "pw1", "email"},
		{"missing password", "a@x.com", "", "password"},
		{"password too long", "a@x.com", strings.Repeat("p", 73), "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.email, tt.password)
			require.ErrorIs(t, err, errs.ErrValidation)

			var verr *errs.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestLogin(t *testing.T) {
	svc, issuer, _ := newTestAuthService(nil)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	session, err := svc.Login(ctx, "A@x.COM", "pw1")
	require.NoError(t, err)
	assert.Equal(t, registered.User, session.User)

	id, err := issuer.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.UserID, id.UserID)

	_, err = svc.Login(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@x.com", "pw1")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "", "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestLoginLockout(t *testing.T) {
	limiter := newCountingLimiter(2)
	svc, _, _ := newTestAuthService(limiter)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.Login(ctx, "a@x.com", "wrong")
		require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	}

	// Locked out even with the right password.
	_, err = svc.Login(ctx, "a@x.com", "pw1")
	assert.ErrorIs(t, err, errs.ErrTooManyAttempts)

	delete(limiter.failures, "a@x.com")
	_, err = svc.Login(ctx, "a@x.com", "wrong")
	require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	assert.Zero(t, limiter.failures["a@x.com"])
}

func TestLoginLimiterFailsOpen(t *testing.T) {
	limiter := newCountingLimiter(1)
	svc, _, hook := newTestAuthService(limiter)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	limiter.err = errors.New("connection refused")
	_, err = svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "login limiter unavailable" {
			warned = true
		}
	}
	assert.True(t, warned)
}
