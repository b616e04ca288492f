package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"ziksir-notes/auth"
	"ziksir-notes/errs"
	"ziksir-notes/models"
	"ziksir-notes/store"
)

// bcrypt ignores everything past 72 bytes.
const maxPasswordBytes = 72

type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      models.Identity `json:"user"`
}

type credentials struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
}

type AuthService struct {
	users    store.UserStore
	issuer   *auth.Issuer
	hasher   *auth.Hasher
	limiter  auth.LoginLimiter
	log      logrus.FieldLogger
	validate *validator.Validate
	now      func() time.Time
}

func NewAuthService(users store.UserStore, issuer *auth.Issuer, hasher *auth.Hasher, limiter auth.LoginLimiter, log logrus.FieldLogger) *AuthService {
	if limiter == nil {
		limiter = auth.NoopLimiter{}
	}
	return &AuthService{
		users:    users,
		issuer:   issuer,
		hasher:   hasher,
		limiter:  limiter,
		log:      log,
		validate: newValidator(),
		now:      time.Now,
	}
}

func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Register creates an account and logs it in. Emails are compared
// case-insensitively.
func (s *AuthService) Register(ctx context.Context, email, password string) (Session, error) {
	req := credentials{Email: normalizeEmail(email), Password: password}
	if err := s.validate.Struct(req); err != nil {
		return Session{}, validationError(err)
	}
	if len(req.Password) > maxPasswordBytes {
		return Session{}, errs.NewValidationError("password", "must be at most 72 bytes")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return Session{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return Session{}, errs.ErrConflict
		}
		return Session{}, err
	}

	s.log.WithField("user_id", user.ID).Info("user registered")
	return s.session(models.Identity{UserID: user.ID, Email: user.Email})
}

// Login checks credentials and issues a token. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	key := normalizeEmail(email)
	if key == "" || password == "" {
		fields := map[string]string{}
		if key == "" {
			fields["email"] = "is required"
		}
		if password == "" {
			fields["password"] = "is required"
		}
		return Session{}, &errs.ValidationError{Fields: fields}
	}

	allowed, err := s.limiter.Allow(ctx, key)
	if err != nil {
		s.log.WithError(err).Warn("login limiter unavailable")
	} else if !allowed {
		return Session{}, errs.ErrTooManyAttempts
	}

	user, err := s.users.FindUserByEmail(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		s.hasher.Burn(password)
		s.recordFailure(ctx, key)
		return Session{}, errs.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}

	if !s.hasher.Matches(user.PasswordHash, password) {
		s.recordFailure(ctx, key)
		return Session{}, errs.ErrInvalidCredentials
	}

	if err := s.limiter.Reset(ctx, key); err != nil {
		s.log.WithError(err).Warn("failed to reset login attempts")
	}
	return s.session(models.Identity{UserID: user.ID, Email: user.Email})
}

func (s *AuthService) recordFailure(ctx context.Context, key string) {
	if err := s.limiter.Fail(ctx, key); err != nil {
		s.log.WithError(err).Warn("failed to record login failure")
	}
}

func (s *AuthService) session(id models.Identity) (Session, error) {
	token, expiresAt, err := s.issuer.Issue(id)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, User: id}, nil
}
