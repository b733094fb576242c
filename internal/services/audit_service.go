package services

import (
	"context"
	"fmt"

	"github.com/BradenHooton/gradegate/internal/models"
	pkglogger "github.com/BradenHooton/gradegate/pkg/logger"
)

// LoginAttemptRepository is the append-only attempt store
type LoginAttemptRepository interface {
	Append(ctx context.Context, attempt *models.LoginAttempt) error
}

// AuditService records login attempts with a dual write: structured log and database
type AuditService struct {
	repo        LoginAttemptRepository
	auditLogger *pkglogger.AuditLogger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo LoginAttemptRepository, auditLogger *pkglogger.AuditLogger) *AuditService {
	return &AuditService{
		repo:        repo,
		auditLogger: auditLogger,
	}
}

// Record writes one attempt. The log line is emitted even if persistence fails.
func (s *AuditService) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	event := pkglogger.LoginEvent{
		Identifier:     attempt.Identifier,
		IPAddress:      attempt.IPAddress,
		UserAgent:      attempt.UserAgent,
		Success:        attempt.Outcome == models.LoginOutcomeSuccess,
		ResponseTimeMs: attempt.ResponseTimeMs,
	}
	if attempt.AccountID != nil {
		event.AccountID = *attempt.AccountID
	}
	if attempt.FailureReason != nil {
		event.FailureReason = string(*attempt.FailureReason)
	}
	if attempt.AccountStatusAtAttempt != nil {
		event.AccountStatus = string(*attempt.AccountStatusAtAttempt)
	}
	s.auditLogger.LogLoginAttempt(ctx, event)

	if err := s.repo.Append(ctx, attempt); err != nil {
		return fmt.Errorf("persist login attempt: %w", err)
	}

	return nil
}

// RecordAccountAction logs an account lifecycle event
func (s *AuditService) RecordAccountAction(ctx context.Context, eventType, accountID string, metadata map[string]string) {
	s.auditLogger.LogAccountAction(ctx, eventType, accountID, metadata)
}
