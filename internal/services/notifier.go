package services

import (
	"context"
	"log/slog"
	"time"

	pkglogger "github.com/BradenHooton/gradegate/pkg/logger"
)

// VerificationNotifier delivers email verification tokens
type VerificationNotifier interface {
	SendVerification(ctx context.Context, identifier, token string, expiresAt time.Time) error
}

// LogNotifier writes verification tokens to the log. Tokens are redacted in production.
type LogNotifier struct {
	logger *slog.Logger
	env    string
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *slog.Logger, env string) *LogNotifier {
	return &LogNotifier{logger: logger, env: env}
}

func (n *LogNotifier) SendVerification(ctx context.Context, identifier, token string, expiresAt time.Time) error {
	n.logger.InfoContext(ctx, "verification token issued",
		slog.String("identifier", pkglogger.SanitizedEmail(identifier)),
		pkglogger.RedactedAttr("token", token, n.env),
		slog.Time("expires_at", expiresAt),
	)
	return nil
}
