package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/gradegate/internal/database"
	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/jackc/pgx/v5"
)

// RateLimitRepository keeps rate-limit counters in Postgres. Each Hit is one
// transaction holding the counter row lock.
type RateLimitRepository struct {
	db *database.DB
}

func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Hit counts one check against scope/key and returns the decision
func (r *RateLimitRepository) Hit(ctx context.Context, scope models.RateLimitScope, key string, policy models.RateLimitPolicy, now time.Time) (models.RateLimitDecision, error) {
	var decision models.RateLimitDecision

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO rate_limit_counters (scope, key, window_start, attempt_count, updated_at)
			VALUES ($1, $2, $3, 0, $3)
			ON CONFLICT (scope, key) DO NOTHING`,
			string(scope), key, now,
		)
		if err != nil {
			return fmt.Errorf("ensure counter: %w", err)
		}

		counter := models.RateLimitCounter{Scope: scope, Key: key}
		err = tx.QueryRow(ctx, `
			SELECT window_start, attempt_count, blocked_until, updated_at
			FROM rate_limit_counters
			WHERE scope = $1 AND key = $2
			FOR UPDATE`,
			string(scope), key,
		).Scan(&counter.WindowStart, &counter.AttemptCount, &counter.BlockedUntil, &counter.UpdatedAt)
		if err != nil {
			return fmt.Errorf("lock counter: %w", database.MapPostgresError(err))
		}

		decision = counter.Apply(policy, now)

		_, err = tx.Exec(ctx, `
			UPDATE rate_limit_counters
			SET window_start = $3, attempt_count = $4, blocked_until = $5, updated_at = $6
			WHERE scope = $1 AND key = $2`,
			string(scope), key, counter.WindowStart, counter.AttemptCount, counter.BlockedUntil, now,
		)
		if err != nil {
			return fmt.Errorf("update counter: %w", err)
		}

		return nil
	})
	if err != nil {
		return models.RateLimitDecision{}, fmt.Errorf("rate limit hit %s/%s: %w", scope, key, err)
	}

	return decision, nil
}

// PurgeIdle deletes counters untouched since before and not currently blocked
func (r *RateLimitRepository) PurgeIdle(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		DELETE FROM rate_limit_counters
		WHERE updated_at < $1 AND (blocked_until IS NULL OR blocked_until < $1)`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge idle counters: %w", err)
	}
	return tag.RowsAffected(), nil
}
