package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gradegate/internal/auth"
	"github.com/BradenHooton/gradegate/internal/models"
	pkglogger "github.com/BradenHooton/gradegate/pkg/logger"
)

// RateLimitStore performs one atomic read-modify-write of a counter
type RateLimitStore interface {
	Hit(ctx context.Context, scope models.RateLimitScope, key string, policy models.RateLimitPolicy, now time.Time) (models.RateLimitDecision, error)
}

// RateLimitService applies fixed-window limits with block cooldowns per IP and per identifier
type RateLimitService struct {
	store  RateLimitStore
	clock  auth.Clock
	logger *slog.Logger
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(store RateLimitStore, clock auth.Clock, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Check counts one attempt against scope/key. Blocked keys are not incremented.
func (s *RateLimitService) Check(ctx context.Context, scope models.RateLimitScope, key string, policy models.RateLimitPolicy) (models.RateLimitDecision, error) {
	if key == "" {
		key = "unknown"
	}

	decision, err := s.store.Hit(ctx, scope, key, policy, s.clock.Now())
	if err != nil {
		return models.RateLimitDecision{}, fmt.Errorf("check %s rate limit: %w", scope, err)
	}

	if !decision.Allowed {
		s.logger.WarnContext(ctx, "rate limit exceeded",
			slog.String("scope", string(scope)),
			slog.String("key", logKey(scope, key)),
			slog.Int("attempt_count", decision.AttemptCount),
			slog.Duration("retry_after", decision.RetryAfter),
		)
	}

	return decision, nil
}

func logKey(scope models.RateLimitScope, key string) string {
	if scope == models.RateLimitScopeIdentifier {
		return pkglogger.SanitizedEmail(key)
	}
	return key
}
