package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/gradegate/internal/auth"
	"github.com/BradenHooton/gradegate/internal/models"
	pkglogger "github.com/BradenHooton/gradegate/pkg/logger"
)

// LoginRequest is one raw login attempt as received from the transport
type LoginRequest struct {
	Identifier string
	Password   string
	IPAddress  string
	UserAgent  string
}

// RateLimiter counts attempts against a scoped key
type RateLimiter interface {
	Check(ctx context.Context, scope models.RateLimitScope, key string, policy models.RateLimitPolicy) (models.RateLimitDecision, error)
}

// StuffingCheck detects many-identifiers-per-IP patterns
type StuffingCheck interface {
	IsCredentialStuffing(ctx context.Context, ipAddress string, threshold int, window time.Duration) (bool, error)
}

// AccountStateMachine is the login-path view of account state
type AccountStateMachine interface {
	Lookup(ctx context.Context, identifier string) (*models.Account, error)
	RecordFailure(ctx context.Context, id string) (*models.Account, error)
	RecordSuccess(ctx context.Context, id string, expected models.AccountStatus) error
	UnlockIfExpired(ctx context.Context, id string) (bool, error)
}

// CredentialVerifier checks a password for an identifier
type CredentialVerifier interface {
	Verify(ctx context.Context, identifier, password string) (bool, error)
}

// SessionIssuer creates sessions after a success decision and can sign an account out everywhere
type SessionIssuer interface {
	Issue(ctx context.Context, account *models.Account, requiresPasswordReset bool) (*models.Session, error)
	TerminateAll(ctx context.Context, accountID string) error
}

// AttemptRecorder appends login attempts to the audit log
type AttemptRecorder interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
}

// LoginGateConfig holds the gate's limits and timeouts
type LoginGateConfig struct {
	IPPolicy          models.RateLimitPolicy
	IdentifierPolicy  models.RateLimitPolicy
	StuffingThreshold int
	StuffingWindow    time.Duration
	VerifierTimeout   time.Duration
	AuditTimeout      time.Duration
}

// DefaultLoginGateConfig returns the standard limits
func DefaultLoginGateConfig() LoginGateConfig {
	return LoginGateConfig{
		IPPolicy:          models.RateLimitPolicy{MaxAttempts: 20, Window: time.Hour, BlockDuration: 15 * time.Minute},
		IdentifierPolicy:  models.RateLimitPolicy{MaxAttempts: 10, Window: time.Hour, BlockDuration: 15 * time.Minute},
		StuffingThreshold: 10,
		StuffingWindow:    5 * time.Minute,
		VerifierTimeout:   5 * time.Second,
		AuditTimeout:      2 * time.Second,
	}
}

// LoginGateDeps are the collaborators the gate sequences
type LoginGateDeps struct {
	RateLimiter RateLimiter
	Stuffing    StuffingCheck
	Accounts    AccountStateMachine
	Verifier    CredentialVerifier
	Sessions    SessionIssuer
	Recorder    AttemptRecorder
	Equalizer   *auth.TimingEqualizer
	Clock       auth.Clock
}

// LoginGate turns one login attempt into one decision and one audit record
type LoginGate struct {
	deps   LoginGateDeps
	config LoginGateConfig
	logger *slog.Logger
}

// NewLoginGate creates a new LoginGate
func NewLoginGate(deps LoginGateDeps, config LoginGateConfig, logger *slog.Logger) *LoginGate {
	return &LoginGate{
		deps:   deps,
		config: config,
		logger: logger,
	}
}

// gateDecision is the outcome of the decision steps before auditing
type gateDecision struct {
	reason        *models.FailureReason
	equalize      bool
	session       *models.Session
	requiresReset bool
}

func reject(reason models.FailureReason, equalize bool) gateDecision {
	return gateDecision{reason: &reason, equalize: equalize}
}

func (d gateDecision) result() models.LoginResult {
	if d.reason == nil {
		return models.LoginResult{
			Success:               true,
			RequiresPasswordReset: d.requiresReset,
			Session:               d.session,
		}
	}
	return models.LoginResult{
		Success: false,
		Message: d.reason.Message(),
		Reason:  d.reason,
	}
}

// AttemptLogin decides one attempt. It never returns an error: collaborator
// failures and panics become INTERNAL_ERROR with the generic message.
func (g *LoginGate) AttemptLogin(ctx context.Context, req LoginRequest) models.LoginResult {
	start := g.deps.Clock.Now()
	attempt := &models.LoginAttempt{
		AttemptedAt: start,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
		Identifier:  auth.AuditIdentifier(req.Identifier),
	}

	decision := g.decideSafely(ctx, req, attempt)

	if decision.equalize {
		if err := g.deps.Equalizer.Equalize(ctx, start); err != nil {
			g.logger.DebugContext(ctx, "response equalization interrupted", slog.String("error", err.Error()))
		}
	}

	attempt.ResponseTimeMs = g.deps.Clock.Now().Sub(start).Milliseconds()
	if decision.reason == nil {
		attempt.Outcome = models.LoginOutcomeSuccess
	} else {
		attempt.Outcome = models.LoginOutcomeFailure
		attempt.FailureReason = decision.reason
	}
	g.record(ctx, attempt)

	return decision.result()
}

func (g *LoginGate) decideSafely(ctx context.Context, req LoginRequest, attempt *models.LoginAttempt) (d gateDecision) {
	defer func() {
		if p := recover(); p != nil {
			g.logger.ErrorContext(ctx, "login gate panic", slog.Any("panic", p))
			d = reject(models.FailureInternalError, true)
		}
	}()
	return g.decide(ctx, req, attempt)
}

func (g *LoginGate) decide(ctx context.Context, req LoginRequest, attempt *models.LoginAttempt) gateDecision {
	identifier, err := auth.NormalizeAttempt(req.Identifier, req.Password)
	if err != nil {
		return reject(models.FailureInvalidInput, true)
	}
	attempt.Identifier = identifier

	ipDecision, err := g.deps.RateLimiter.Check(ctx, models.RateLimitScopeIP, req.IPAddress, g.config.IPPolicy)
	if err != nil {
		return g.internalError(ctx, "ip rate limit", err)
	}
	if !ipDecision.Allowed {
		return reject(models.FailureIPRateLimitExceeded, true)
	}

	idDecision, err := g.deps.RateLimiter.Check(ctx, models.RateLimitScopeIdentifier, identifier, g.config.IdentifierPolicy)
	if err != nil {
		return g.internalError(ctx, "identifier rate limit", err)
	}
	if !idDecision.Allowed {
		return reject(models.FailureIdentifierRateLimitExceeded, true)
	}

	stuffing, err := g.deps.Stuffing.IsCredentialStuffing(ctx, req.IPAddress, g.config.StuffingThreshold, g.config.StuffingWindow)
	if err != nil {
		return g.internalError(ctx, "stuffing detection", err)
	}
	if stuffing {
		return reject(models.FailureCredentialStuffingPattern, true)
	}

	account, err := g.deps.Accounts.Lookup(ctx, identifier)
	if errors.Is(err, models.ErrNotFound) {
		return reject(models.FailureUserNotFound, true)
	}
	if err != nil {
		return g.internalError(ctx, "account lookup", err)
	}
	snapshot(attempt, account)

	if account.Status == models.AccountStatusLocked {
		unlocked, err := g.deps.Accounts.UnlockIfExpired(ctx, account.ID)
		if err != nil {
			return g.internalError(ctx, "unlock", err)
		}
		if !unlocked {
			return reject(models.FailureAccountLocked, true)
		}

		account, err = g.deps.Accounts.Lookup(ctx, identifier)
		if err != nil {
			return g.internalError(ctx, "account re-lookup", err)
		}
		snapshot(attempt, account)
	}

	switch account.Status {
	case models.AccountStatusDeleted:
		return reject(models.FailureAccountDeleted, true)
	case models.AccountStatusSuspended:
		return reject(models.FailureAccountSuspended, false)
	case models.AccountStatusLocked:
		// relocked between unlock and re-lookup
		return reject(models.FailureAccountLocked, true)
	case models.AccountStatusActive, models.AccountStatusUnverified, models.AccountStatusPasswordResetRequired:
	default:
		return g.internalError(ctx, "account status", errors.New("unknown account status "+string(account.Status)))
	}

	verifyCtx, cancel := context.WithTimeout(ctx, g.config.VerifierTimeout)
	ok, err := g.deps.Verifier.Verify(verifyCtx, identifier, req.Password)
	cancel()
	if err != nil {
		return g.internalError(ctx, "credential verification", err)
	}

	if !ok {
		if _, err := g.deps.Accounts.RecordFailure(ctx, account.ID); err != nil {
			return g.internalError(ctx, "record failure", err)
		}
		return reject(models.FailureWrongPassword, false)
	}

	switch account.Status {
	case models.AccountStatusUnverified:
		if err := g.deps.Sessions.TerminateAll(ctx, account.ID); err != nil {
			return g.internalError(ctx, "terminate sessions", err)
		}
		return reject(models.FailureEmailNotVerified, false)

	case models.AccountStatusPasswordResetRequired:
		return g.succeed(ctx, account, true)

	default:
		return g.succeed(ctx, account, false)
	}
}

func (g *LoginGate) succeed(ctx context.Context, account *models.Account, requiresReset bool) gateDecision {
	err := g.deps.Accounts.RecordSuccess(ctx, account.ID, account.Status)
	if errors.Is(err, models.ErrInvalidTransition) {
		// locked, suspended or deleted while the password was being checked
		g.logger.WarnContext(ctx, "account status changed during login", slog.String("account_id", account.ID))
		return reject(models.FailureAccountLocked, true)
	}
	if err != nil {
		return g.internalError(ctx, "record success", err)
	}

	session, err := g.deps.Sessions.Issue(ctx, account, requiresReset)
	if err != nil {
		return g.internalError(ctx, "issue session", err)
	}

	return gateDecision{session: session, requiresReset: requiresReset}
}

func (g *LoginGate) internalError(ctx context.Context, stage string, err error) gateDecision {
	msg := "login gate collaborator failed"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "login gate collaborator timed out"
	}
	g.logger.ErrorContext(ctx, msg,
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	return reject(models.FailureInternalError, true)
}

func snapshot(attempt *models.LoginAttempt, account *models.Account) {
	id := account.ID
	status := account.Status
	attempt.AccountID = &id
	attempt.AccountStatusAtAttempt = &status
}

// record appends the attempt on a context detached from caller cancellation
func (g *LoginGate) record(ctx context.Context, attempt *models.LoginAttempt) {
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.config.AuditTimeout)
	defer cancel()

	if err := g.deps.Recorder.Record(auditCtx, attempt); err != nil {
		g.logger.ErrorContext(ctx, "failed to record login attempt",
			slog.String("identifier", pkglogger.SanitizedEmail(attempt.Identifier)),
			slog.String("error", err.Error()),
		)
	}
}
