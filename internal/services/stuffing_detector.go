package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gradegate/internal/auth"
)

// AttemptHistory answers questions about previously recorded login attempts
type AttemptHistory interface {
	CountDistinctIdentifiersByIP(ctx context.Context, ipAddress string, since time.Time) (int, error)
}

// StuffingDetector flags IPs that try many different identifiers in a short window
type StuffingDetector struct {
	history AttemptHistory
	clock   auth.Clock
	logger  *slog.Logger
}

// NewStuffingDetector creates a new StuffingDetector
func NewStuffingDetector(history AttemptHistory, clock auth.Clock, logger *slog.Logger) *StuffingDetector {
	return &StuffingDetector{
		history: history,
		clock:   clock,
		logger:  logger,
	}
}

// IsCredentialStuffing reports whether ip tried more than threshold distinct identifiers within window
func (d *StuffingDetector) IsCredentialStuffing(ctx context.Context, ipAddress string, threshold int, window time.Duration) (bool, error) {
	since := d.clock.Now().Add(-window)

	count, err := d.history.CountDistinctIdentifiersByIP(ctx, ipAddress, since)
	if err != nil {
		return false, fmt.Errorf("count identifiers for ip: %w", err)
	}

	if count > threshold {
		d.logger.WarnContext(ctx, "credential stuffing pattern detected",
			slog.String("ip_address", ipAddress),
			slog.Int("distinct_identifiers", count),
			slog.Duration("window", window),
		)
		return true, nil
	}

	return false, nil
}
