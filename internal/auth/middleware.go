package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/gradegate/internal/models"
	pkghttp "github.com/BradenHooton/gradegate/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing session claims in context
	SessionContextKey contextKey = "session"
)

// SessionValidator checks a bearer token against signature, expiry and the live session registry
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*models.TokenClaims, error)
}

// SessionMiddleware authenticates requests with a session bearer token
func SessionMiddleware(validator SessionValidator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := BearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "missing or malformed authorization header")
				return
			}

			claims, err := validator.Validate(r.Context(), tokenString)
			if err != nil {
				if !errors.Is(err, models.ErrSessionInvalid) {
					logger.Warn("session validation failed", slog.String("error", err.Error()))
				}
				pkghttp.WriteUnauthorized(w, "invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an Authorization: Bearer header
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetSessionFromContext extracts session claims from request context
func GetSessionFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(SessionContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
