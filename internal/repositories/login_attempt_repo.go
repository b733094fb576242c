package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/gradegate/internal/database"
	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/google/uuid"
)

// LoginAttemptRepository is the append-only audit store for login attempts
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Append records a login attempt. Records are never updated afterwards.
func (r *LoginAttemptRepository) Append(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}

	var failureReason, statusAtAttempt *string
	if attempt.FailureReason != nil {
		s := string(*attempt.FailureReason)
		failureReason = &s
	}
	if attempt.AccountStatusAtAttempt != nil {
		s := string(*attempt.AccountStatusAtAttempt)
		statusAtAttempt = &s
	}

	query := `
		INSERT INTO login_attempts (
			id, attempted_at, ip_address, user_agent, identifier, account_id,
			outcome, failure_reason, account_status_at_attempt, response_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.AttemptedAt,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Identifier,
		attempt.AccountID,
		string(attempt.Outcome),
		failureReason,
		statusAtAttempt,
		attempt.ResponseTimeMs,
	)
	if err != nil {
		return fmt.Errorf("failed to append login attempt: %w", database.MapPostgresError(err))
	}

	return nil
}

// CountDistinctIdentifiersByIP returns how many different identifiers an IP tried since the given time
func (r *LoginAttemptRepository) CountDistinctIdentifiersByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(DISTINCT identifier) FROM login_attempts
		WHERE ip_address = $1 AND attempted_at >= $2
	`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, ipAddress, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count identifiers by ip: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes audit records past the retention horizon
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE attempted_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old login attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
