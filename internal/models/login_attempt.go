package models

import "time"

// FailureReason is the closed set of reasons a login attempt can be rejected
type FailureReason string

const (
	FailureInvalidInput                FailureReason = "INVALID_INPUT"
	FailureIPRateLimitExceeded         FailureReason = "IP_RATE_LIMIT_EXCEEDED"
	FailureIdentifierRateLimitExceeded FailureReason = "IDENTIFIER_RATE_LIMIT_EXCEEDED"
	FailureCredentialStuffingPattern   FailureReason = "CREDENTIAL_STUFFING_PATTERN"
	FailureUserNotFound                FailureReason = "USER_NOT_FOUND"
	FailureAccountDeleted              FailureReason = "ACCOUNT_DELETED"
	FailureAccountSuspended            FailureReason = "ACCOUNT_SUSPENDED"
	FailureAccountLocked               FailureReason = "ACCOUNT_LOCKED"
	FailureWrongPassword               FailureReason = "WRONG_PASSWORD"
	FailureEmailNotVerified            FailureReason = "EMAIL_NOT_VERIFIED"
	FailureInternalError               FailureReason = "INTERNAL_ERROR"
)

// User-facing messages. Only suspended and unverified accounts get a specific one.
const (
	GenericLoginFailureMessage = "email or password is incorrect"
	AccountSuspendedMessage    = "account suspended, please contact support"
	EmailNotVerifiedMessage    = "please verify your email address first, check your inbox"
)

// Informative reports whether the reason surfaces a specific message instead of the generic one
func (r FailureReason) Informative() bool {
	return r == FailureAccountSuspended || r == FailureEmailNotVerified
}

// Message returns the user-facing message for the reason
func (r FailureReason) Message() string {
	if !r.Informative() {
		return GenericLoginFailureMessage
	}
	switch r {
	case FailureAccountSuspended:
		return AccountSuspendedMessage
	case FailureEmailNotVerified:
		return EmailNotVerifiedMessage
	default:
		return GenericLoginFailureMessage
	}
}

// LoginOutcome is the recorded result of an attempt
type LoginOutcome string

const (
	LoginOutcomeSuccess LoginOutcome = "success"
	LoginOutcomeFailure LoginOutcome = "failure"
)

// LoginAttempt is one append-only audit record. Records are never updated.
type LoginAttempt struct {
	ID                     string         `db:"id"`
	AttemptedAt            time.Time      `db:"attempted_at"`
	IPAddress              string         `db:"ip_address"`
	UserAgent              string         `db:"user_agent"`
	Identifier             string         `db:"identifier"`
	AccountID              *string        `db:"account_id"`
	Outcome                LoginOutcome   `db:"outcome"`
	FailureReason          *FailureReason `db:"failure_reason"`
	AccountStatusAtAttempt *AccountStatus `db:"account_status_at_attempt"`
	ResponseTimeMs         int64          `db:"response_time_ms"`
}
