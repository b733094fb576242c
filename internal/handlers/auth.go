package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/gradegate/internal/auth"
	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/BradenHooton/gradegate/internal/services"
	pkgauth "github.com/BradenHooton/gradegate/pkg/auth"
	pkghttp "github.com/BradenHooton/gradegate/pkg/http"
)

const maxBodyBytes = 1 << 14

// LoginGate decides login attempts
type LoginGate interface {
	AttemptLogin(ctx context.Context, req services.LoginRequest) models.LoginResult
}

// AccountManager handles account lifecycle requests
type AccountManager interface {
	Register(ctx context.Context, rawIdentifier, password string) error
	VerifyEmail(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error
}

// SessionManager ends sessions and reports live ones
type SessionManager interface {
	Terminate(ctx context.Context, claims *models.TokenClaims) error
	TerminateAll(ctx context.Context, accountID string) error
	ActiveCount(ctx context.Context, accountID string) (int64, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	gate     LoginGate
	accounts AccountManager
	sessions SessionManager
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(gate LoginGate, accounts AccountManager, sessions SessionManager, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		gate:     gate,
		accounts: accounts,
		sessions: sessions,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

// LoginRequest represents the request body for login. Email is accepted as an
// alias for identifier.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email,omitempty"`
	Password   string `json:"password"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,identifier"`
	Password string `json:"password" validate:"required,max=256"`
}

// VerifyEmailRequest represents the request body for email verification
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,max=256"`
}

// Response DTOs

// LoginResponse is returned on a successful login
type LoginResponse struct {
	AccessToken           string    `json:"access_token"`
	ExpiresAt             time.Time `json:"expires_at"`
	RequiresPasswordReset bool      `json:"requires_password_reset"`
}

// SessionResponse describes the caller's session
type SessionResponse struct {
	AccountID             string    `json:"account_id"`
	Identifier            string    `json:"identifier"`
	RequiresPasswordReset bool      `json:"requires_password_reset"`
	ExpiresAt             time.Time `json:"expires_at"`
	ActiveSessions        int64     `json:"active_sessions"`
}

const registrationAccepted = "Registration received. If the email is not already registered, you will receive a verification link."

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// Login handles POST /auth/login. Input validation is left to the gate so that
// malformed attempts, undecodable bodies included, are audited and equalized
// like any other rejection.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.logger.DebugContext(r.Context(), "undecodable login body", slog.String("error", err.Error()))
		req = LoginRequest{}
	}

	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}

	result := h.gate.AttemptLogin(r.Context(), services.LoginRequest{
		Identifier: identifier,
		Password:   req.Password,
		IPAddress:  pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:  r.UserAgent(),
	})

	if !result.Success || result.Session == nil {
		pkghttp.WriteLoginFailed(w, result.Message)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken:           result.Session.Token,
		ExpiresAt:             result.Session.ExpiresAt,
		RequiresPasswordReset: result.RequiresPasswordReset,
	})
}

// Register handles POST /auth/register. The response does not reveal whether
// the email was already registered.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &pwErr):
			pkghttp.WriteBadRequest(w, "Password does not meet the requirements")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid email address")
		default:
			h.logger.ErrorContext(r.Context(), "registration failed", slog.String("error", err.Error()))
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]string{"message": registrationAccepted})
}

// VerifyEmail handles POST /auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := decodeBody(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.accounts.VerifyEmail(r.Context(), req.Token); err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid or expired verification token")
			return
		}
		h.logger.ErrorContext(r.Context(), "email verification failed", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Email verified. Please log in."})
}

// Logout handles POST /auth/logout by terminating the current session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.sessions.Terminate(r.Context(), claims); err != nil {
		h.logger.ErrorContext(r.Context(), "logout failed", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll handles POST /auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.sessions.TerminateAll(r.Context(), claims.AccountID); err != nil {
		h.logger.ErrorContext(r.Context(), "logout all failed", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	count, err := h.sessions.ActiveCount(r.Context(), claims.AccountID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "count sessions failed", slog.String("error", err.Error()))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := SessionResponse{
		AccountID:             claims.AccountID,
		Identifier:            claims.Identifier,
		RequiresPasswordReset: claims.RequiresPasswordReset,
		ActiveSessions:        count,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ChangePassword handles POST /auth/password. Every session of the account,
// the current one included, ends on success.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.accounts.ChangePassword(r.Context(), claims.AccountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.Is(err, models.ErrPasswordIncorrect):
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		case errors.As(err, &pwErr):
			pkghttp.WriteBadRequest(w, "Password does not meet the requirements")
		case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrNotFound):
			pkghttp.WriteError(w, http.StatusConflict, "conflict", "Password cannot be changed for this account")
		default:
			h.logger.ErrorContext(r.Context(), "password change failed", slog.String("error", err.Error()))
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
