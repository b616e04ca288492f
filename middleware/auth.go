package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"ziksir-notes/errs"
	"ziksir-notes/logger"
	"ziksir-notes/models"
)

type contextKey struct{}

// TokenVerifier is satisfied by *auth.Issuer.
type TokenVerifier interface {
	Verify(token string) (models.Identity, error)
}

func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the identity RequireAuth attached to ctx.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(models.Identity)
	return id, ok
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errs.ErrMissingToken
	}

	tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || strings.TrimSpace(tokenStr) == "" {
		return "", errs.ErrInvalidToken
	}
	return strings.TrimSpace(tokenStr), nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's identity in the request context otherwise.
func RequireAuth(verifier TokenVerifier, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, err := BearerToken(r)
			if err != nil {
				writeError(w, err)
				return
			}

			id, err := verifier.Verify(tokenStr)
			if err != nil {
				if !errors.Is(err, errs.ErrExpiredToken) {
					logger.FromRequest(log, r).WithError(err).Debug("rejected token")
				}
				writeError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errs.HTTPStatus(err))
	json.NewEncoder(w).Encode(map[string]string{"message": errs.PublicMessage(err)})
}
