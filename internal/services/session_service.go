package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gradegate/internal/auth"
	"github.com/BradenHooton/gradegate/internal/models"
)

// SessionRegistry tracks which issued session tokens are still live
type SessionRegistry interface {
	Register(ctx context.Context, accountID, tokenID string, expiresAt, now time.Time) error
	IsActive(ctx context.Context, accountID, tokenID string, now time.Time) (bool, error)
	Revoke(ctx context.Context, accountID, tokenID string) error
	RevokeAll(ctx context.Context, accountID string) error
	Count(ctx context.Context, accountID string) (int64, error)
}

// SessionService issues, validates and terminates login sessions
type SessionService struct {
	tokens   *auth.TokenManager
	registry SessionRegistry
	clock    auth.Clock
	logger   *slog.Logger
}

// NewSessionService creates a new SessionService
func NewSessionService(tokens *auth.TokenManager, registry SessionRegistry, clock auth.Clock, logger *slog.Logger) *SessionService {
	return &SessionService{
		tokens:   tokens,
		registry: registry,
		clock:    clock,
		logger:   logger,
	}
}

// Issue creates a session for an account that has just passed the gate
func (s *SessionService) Issue(ctx context.Context, account *models.Account, requiresPasswordReset bool) (*models.Session, error) {
	token, claims, err := s.tokens.GenerateSessionToken(account.ID, account.Identifier, requiresPasswordReset)
	if err != nil {
		return nil, err
	}

	expiresAt := claims.ExpiresAt.Time
	if err := s.registry.Register(ctx, account.ID, claims.ID, expiresAt, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	return &models.Session{
		Token:                 token,
		TokenID:               claims.ID,
		AccountID:             account.ID,
		ExpiresAt:             expiresAt,
		RequiresPasswordReset: requiresPasswordReset,
	}, nil
}

// Validate checks signature, expiry and that the session has not been terminated
func (s *SessionService) Validate(ctx context.Context, token string) (*models.TokenClaims, error) {
	claims, err := s.tokens.ValidateToken(token, models.TokenTypeSession)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSessionInvalid, err)
	}

	active, err := s.registry.IsActive(ctx, claims.AccountID, claims.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, models.ErrSessionInvalid
	}

	return claims, nil
}

// Terminate ends one session
func (s *SessionService) Terminate(ctx context.Context, claims *models.TokenClaims) error {
	return s.registry.Revoke(ctx, claims.AccountID, claims.ID)
}

// TerminateAll ends every session of an account
func (s *SessionService) TerminateAll(ctx context.Context, accountID string) error {
	if err := s.registry.RevokeAll(ctx, accountID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "all sessions terminated", slog.String("account_id", accountID))
	return nil
}

// ActiveCount returns how many live sessions an account has
func (s *SessionService) ActiveCount(ctx context.Context, accountID string) (int64, error) {
	return s.registry.Count(ctx, accountID)
}
