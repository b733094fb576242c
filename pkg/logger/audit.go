package logger

import (
	"context"
	"log/slog"
	"time"
)

// LoginEvent is the structured log view of one login decision
type LoginEvent struct {
	Identifier     string
	AccountID      string
	IPAddress      string
	UserAgent      string
	Success        bool
	FailureReason  string
	AccountStatus  string
	ResponseTimeMs int64
}

// AuditLogger writes security audit records to the structured log
type AuditLogger struct {
	logger *slog.Logger
	env    string
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger, env string) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		env:    env,
	}
}

// LogLoginAttempt logs one login decision. Failures are logged at warn level.
func (al *AuditLogger) LogLoginAttempt(ctx context.Context, event LoginEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", "login_attempt"),
		slog.Bool("success", event.Success),
		slog.String("identifier", SanitizedEmail(event.Identifier)),
		slog.Int64("response_time_ms", event.ResponseTimeMs),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, RedactedAttr("ip_address", event.IPAddress, al.env))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	if event.AccountStatus != "" {
		attrs = append(attrs, slog.String("account_status", event.AccountStatus))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAccountAction logs account lifecycle actions (registration, verification, password change)
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, accountID string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "account"),
		slog.String("event_type", eventType),
		slog.String("account_id", accountID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
