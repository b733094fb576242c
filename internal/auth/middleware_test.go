package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/stretchr/testify/assert"
)

type stubValidator struct {
	claims *models.TokenClaims
	err    error
	seen   string
}

func (s *stubValidator) Validate(_ context.Context, token string) (*models.TokenClaims, error) {
	s.seen = token
	return s.claims, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionMiddleware_InjectsClaims(t *testing.T) {
	validator := &stubValidator{claims: &models.TokenClaims{AccountID: "acct-1"}}
	var got *models.TokenClaims

	handler := SessionMiddleware(validator, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetSessionFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc.def.ghi", validator.seen)
	if assert.NotNil(t, got) {
		assert.Equal(t, "acct-1", got.AccountID)
	}
}

func TestSessionMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
	}{
		{"missing header", "", nil},
		{"wrong scheme", "Basic dXNlcjpwYXNz", nil},
		{"empty token", "Bearer ", nil},
		{"terminated session", "Bearer token", models.ErrSessionInvalid},
		{"registry failure", "Bearer token", fmt.Errorf("redis down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := &stubValidator{err: tt.err}
			called := false
			handler := SessionMiddleware(validator, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.False(t, called)
		})
	}
}

func TestGetSessionFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, GetSessionFromContext(req))
}
