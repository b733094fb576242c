package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/gradegate/internal/auth"
	"github.com/BradenHooton/gradegate/internal/models"
	pkgauth "github.com/BradenHooton/gradegate/pkg/auth"
	pkglogger "github.com/BradenHooton/gradegate/pkg/logger"
)

// AccountAuditor records account lifecycle events
type AccountAuditor interface {
	RecordAccountAction(ctx context.Context, eventType, accountID string, metadata map[string]string)
}

// SessionTerminator ends every session of an account
type SessionTerminator interface {
	TerminateAll(ctx context.Context, accountID string) error
}

// AccountService handles registration, email verification and password changes
type AccountService struct {
	store    AccountStore
	state    *AccountStateService
	tokens   *auth.TokenManager
	sessions SessionTerminator
	notifier VerificationNotifier
	auditor  AccountAuditor
	logger   *slog.Logger
	hashCost int
}

// NewAccountService creates a new AccountService
func NewAccountService(
	store AccountStore,
	state *AccountStateService,
	tokens *auth.TokenManager,
	sessions SessionTerminator,
	notifier VerificationNotifier,
	auditor AccountAuditor,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		store:    store,
		state:    state,
		tokens:   tokens,
		sessions: sessions,
		notifier: notifier,
		auditor:  auditor,
		logger:   logger,
		hashCost: pkgauth.BcryptCost,
	}
}

// SetHashCost overrides the bcrypt cost for new hashes
func (s *AccountService) SetHashCost(cost int) {
	s.hashCost = cost
}

// Register creates an UNVERIFIED account and sends a verification token.
// A duplicate identifier returns nil so callers cannot enumerate accounts.
func (s *AccountService) Register(ctx context.Context, rawIdentifier, password string) error {
	identifier := auth.NormalizeIdentifier(rawIdentifier)
	if !auth.ValidRegistrationIdentifier(identifier) {
		return fmt.Errorf("%w: invalid identifier", models.ErrBadRequest)
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return err
	}

	hash, err := pkgauth.HashPasswordWithCost(password, s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	account, err := s.store.Create(ctx, &models.Account{
		Identifier:   identifier,
		PasswordHash: hash,
		Status:       models.AccountStatusUnverified,
	})
	if errors.Is(err, models.ErrConflict) {
		s.logger.InfoContext(ctx, "registration for existing identifier",
			slog.String("identifier", pkglogger.SanitizedEmail(identifier)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	token, claims, err := s.tokens.GenerateVerificationToken(account.ID, account.Identifier)
	if err != nil {
		return err
	}

	if err := s.notifier.SendVerification(ctx, account.Identifier, token, claims.ExpiresAt.Time); err != nil {
		s.logger.ErrorContext(ctx, "failed to send verification token",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()))
	}

	s.auditor.RecordAccountAction(ctx, "account_registered", account.ID, nil)
	return nil
}

// VerifyEmail consumes a verification token. Verifying twice is not an error.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	claims, err := s.tokens.ValidateToken(token, models.TokenTypeEmailVerification)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	changed, err := s.state.MarkEmailVerified(ctx, claims.AccountID)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}

	if changed {
		s.auditor.RecordAccountAction(ctx, "email_verified", claims.AccountID, nil)
	}
	return nil
}

// ChangePassword replaces the password after checking the current one, clears
// PASSWORD_RESET_REQUIRED and signs out every session
func (s *AccountService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := pkgauth.PasswordMatches(account.PasswordHash, currentPassword)
	if err != nil {
		return fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return models.ErrPasswordIncorrect
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}
	if newPassword == currentPassword {
		return &pkgauth.PasswordValidationError{Errors: []string{"new password must differ from the current one"}}
	}

	hash, err := pkgauth.HashPasswordWithCost(newPassword, s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.state.CompletePasswordChange(ctx, accountID, hash); err != nil {
		return err
	}

	if err := s.sessions.TerminateAll(ctx, accountID); err != nil {
		s.logger.ErrorContext(ctx, "failed to terminate sessions after password change",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()))
	}

	s.auditor.RecordAccountAction(ctx, "password_changed", accountID, map[string]string{
		"previous_status": string(account.Status),
	})
	return nil
}

// SetStatus applies an operator status change by identifier. Suspending,
// deleting or forcing a reset also ends every live session.
func (s *AccountService) SetStatus(ctx context.Context, rawIdentifier string, status models.AccountStatus) (*models.Account, error) {
	account, err := s.store.GetByIdentifier(ctx, auth.NormalizeIdentifier(rawIdentifier))
	if err != nil {
		return nil, err
	}

	if err := s.store.SetStatus(ctx, account.ID, status, s.state.clock.Now()); err != nil {
		return nil, err
	}

	switch status {
	case models.AccountStatusSuspended, models.AccountStatusDeleted, models.AccountStatusPasswordResetRequired:
		if err := s.sessions.TerminateAll(ctx, account.ID); err != nil {
			return nil, fmt.Errorf("terminate sessions: %w", err)
		}
	}

	s.auditor.RecordAccountAction(ctx, "status_changed", account.ID, map[string]string{
		"previous_status": string(account.Status),
		"status":          string(status),
	})

	account.Status = status
	return account, nil
}
