package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/gradegate/internal/database"
	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, identifier, password_hash, status, failed_login_count, locked_until,
	status_before_lock, email_verified_at, password_changed_at, created_at, updated_at`

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccountRow handles nullable fields and populates an Account model from a database row
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var status string
	var statusBeforeLock *string

	err := scanner.Scan(
		&account.ID, &account.Identifier, &account.PasswordHash, &status,
		&account.FailedLoginCount, &account.LockedUntil, &statusBeforeLock,
		&account.EmailVerifiedAt, &account.PasswordChangedAt,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	account.Status = models.AccountStatus(status)
	if statusBeforeLock != nil {
		s := models.AccountStatus(*statusBeforeLock)
		account.StatusBeforeLock = &s
	}

	return &account, nil
}

// GetByIdentifier looks up an account by normalized identifier, deleted accounts included
func (r *AccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE identifier = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, identifier))
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Status == "" {
		account.Status = models.AccountStatusUnverified
	}
	if !account.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrBadRequest, account.Status)
	}

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = account.CreatedAt

	query := `
		INSERT INTO accounts (id, identifier, password_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + accountColumns

	created, err := scanAccountRow(r.pool.QueryRow(ctx, query,
		account.ID, account.Identifier, account.PasswordHash, string(account.Status),
		account.CreatedAt, account.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return created, nil
}

// RecordFailure increments the failure counter and locks the account once the
// threshold is reached, in one statement. Returns ErrNotFound when the account
// is missing or its status does not count failures.
func (r *AccountRepository) RecordFailure(ctx context.Context, id string, policy models.LockPolicy, now time.Time) (*models.Account, error) {
	query := `
		UPDATE accounts SET
			failed_login_count = failed_login_count + 1,
			status = CASE WHEN failed_login_count + 1 >= $2 THEN 'LOCKED' ELSE status END,
			status_before_lock = CASE WHEN failed_login_count + 1 >= $2 THEN status ELSE status_before_lock END,
			locked_until = CASE WHEN failed_login_count + 1 >= $2 THEN $3::timestamptz ELSE locked_until END,
			updated_at = $4
		WHERE id = $1 AND NOT (status = ANY($5::text[]))
		RETURNING ` + accountColumns

	account, err := scanAccountRow(r.pool.QueryRow(ctx, query, id, policy.Threshold, now.Add(policy.Duration), now, models.NonCountingStatuses()))
	if err != nil {
		return nil, fmt.Errorf("failed to record login failure: %w", err)
	}

	return account, nil
}

// RecordSuccess resets the failure counter without touching status. The reset
// only applies while the account still has the expected status; otherwise it
// returns ErrInvalidTransition and nothing changes.
func (r *AccountRepository) RecordSuccess(ctx context.Context, id string, expected models.AccountStatus, now time.Time) error {
	query := `UPDATE accounts SET failed_login_count = 0, updated_at = $3 WHERE id = $1 AND status = $2`

	tag, err := r.pool.Exec(ctx, query, id, string(expected), now)
	if err != nil {
		return fmt.Errorf("failed to record login success: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidTransition
	}

	return nil
}

// UnlockIfExpired lifts an elapsed lock and restores status_before_lock, or
// ACTIVE when none was saved, so an UNVERIFIED or PASSWORD_RESET_REQUIRED
// account returns to that status rather than ACTIVE. The failure counter is
// reset. Only one concurrent caller observes true.
func (r *AccountRepository) UnlockIfExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE accounts SET
			status = COALESCE(status_before_lock, 'ACTIVE'),
			status_before_lock = NULL,
			locked_until = NULL,
			failed_login_count = 0,
			updated_at = $2
		WHERE id = $1 AND status = 'LOCKED' AND locked_until <= $2`

	tag, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to unlock account: %w", database.MapPostgresError(err))
	}

	return tag.RowsAffected() == 1, nil
}

// MarkEmailVerified moves an unverified account to ACTIVE and stamps email_verified_at once.
// A locked account that was unverified when locked is verified in place and unlocks to ACTIVE.
func (r *AccountRepository) MarkEmailVerified(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE accounts SET
			status = CASE WHEN status = 'LOCKED' THEN status ELSE 'ACTIVE' END,
			status_before_lock = CASE WHEN status = 'LOCKED' THEN 'ACTIVE' ELSE status_before_lock END,
			email_verified_at = COALESCE(email_verified_at, $2),
			updated_at = $2
		WHERE id = $1 AND (status = 'UNVERIFIED' OR (status = 'LOCKED' AND status_before_lock = 'UNVERIFIED'))`

	tag, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark email verified: %w", database.MapPostgresError(err))
	}

	return tag.RowsAffected() == 1, nil
}

// CompletePasswordChange stores a new hash and clears PASSWORD_RESET_REQUIRED
func (r *AccountRepository) CompletePasswordChange(ctx context.Context, id, passwordHash string, now time.Time) error {
	query := `
		UPDATE accounts SET
			password_hash = $2,
			password_changed_at = $3,
			status = 'ACTIVE',
			failed_login_count = 0,
			updated_at = $3
		WHERE id = $1 AND status IN ('ACTIVE', 'PASSWORD_RESET_REQUIRED')`

	tag, err := r.pool.Exec(ctx, query, id, passwordHash, now)
	if err != nil {
		return fmt.Errorf("failed to change password: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidTransition
	}

	return nil
}

// SetStatus applies an administrative status change
func (r *AccountRepository) SetStatus(ctx context.Context, id string, status models.AccountStatus, now time.Time) error {
	if !status.Valid() || status == models.AccountStatusLocked {
		return models.ErrInvalidTransition
	}

	query := `
		UPDATE accounts SET status = $2, status_before_lock = NULL, locked_until = NULL,
			failed_login_count = 0, updated_at = $3
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, string(status), now)
	if err != nil {
		return fmt.Errorf("failed to set account status: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
