package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gradegate/internal/auth"
	"github.com/BradenHooton/gradegate/internal/models"
)

// AccountStore is the credential store. Every mutating method is a single atomic statement.
type AccountStore interface {
	GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	RecordFailure(ctx context.Context, id string, policy models.LockPolicy, now time.Time) (*models.Account, error)
	RecordSuccess(ctx context.Context, id string, expected models.AccountStatus, now time.Time) error
	UnlockIfExpired(ctx context.Context, id string, now time.Time) (bool, error)
	MarkEmailVerified(ctx context.Context, id string, now time.Time) (bool, error)
	CompletePasswordChange(ctx context.Context, id, passwordHash string, now time.Time) error
	SetStatus(ctx context.Context, id string, status models.AccountStatus, now time.Time) error
}

// AccountStateService owns account status, the failed-attempt counter and lock expiry
type AccountStateService struct {
	store  AccountStore
	policy models.LockPolicy
	clock  auth.Clock
	logger *slog.Logger
}

// NewAccountStateService creates a new AccountStateService
func NewAccountStateService(store AccountStore, policy models.LockPolicy, clock auth.Clock, logger *slog.Logger) *AccountStateService {
	return &AccountStateService{
		store:  store,
		policy: policy,
		clock:  clock,
		logger: logger,
	}
}

// Lookup returns the account snapshot for a normalized identifier, DELETED included
func (s *AccountStateService) Lookup(ctx context.Context, identifier string) (*models.Account, error) {
	return s.store.GetByIdentifier(ctx, identifier)
}

// RecordFailure counts a wrong password. Returns nil without error when the
// account's status does not count failures.
func (s *AccountStateService) RecordFailure(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.store.RecordFailure(ctx, id, s.policy, s.clock.Now())
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if account.Status == models.AccountStatusLocked && account.LockedUntil != nil {
		s.logger.WarnContext(ctx, "account locked after repeated failures",
			slog.String("account_id", account.ID),
			slog.Int("failed_login_count", account.FailedLoginCount),
			slog.Time("locked_until", *account.LockedUntil),
		)
	}

	return account, nil
}

// RecordSuccess resets the failed-attempt counter if the account is still in
// the expected status. ErrInvalidTransition means it changed since it was read.
func (s *AccountStateService) RecordSuccess(ctx context.Context, id string, expected models.AccountStatus) error {
	return s.store.RecordSuccess(ctx, id, expected, s.clock.Now())
}

// UnlockIfExpired lifts an elapsed lock back to the status held before it
// (ACTIVE if unknown). Only one concurrent caller gets true.
func (s *AccountStateService) UnlockIfExpired(ctx context.Context, id string) (bool, error) {
	unlocked, err := s.store.UnlockIfExpired(ctx, id, s.clock.Now())
	if err != nil {
		return false, err
	}

	if unlocked {
		s.logger.InfoContext(ctx, "account lock expired", slog.String("account_id", id))
	}

	return unlocked, nil
}

// MarkEmailVerified moves UNVERIFIED to ACTIVE. Already verified accounts are left alone.
func (s *AccountStateService) MarkEmailVerified(ctx context.Context, id string) (bool, error) {
	return s.store.MarkEmailVerified(ctx, id, s.clock.Now())
}

// CompletePasswordChange stores a new hash and clears PASSWORD_RESET_REQUIRED
func (s *AccountStateService) CompletePasswordChange(ctx context.Context, id, passwordHash string) error {
	if err := s.store.CompletePasswordChange(ctx, id, passwordHash, s.clock.Now()); err != nil {
		return fmt.Errorf("complete password change: %w", err)
	}
	return nil
}
