package models

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = RateLimitPolicy{
	MaxAttempts:   3,
	Window:        time.Hour,
	BlockDuration: 15 * time.Minute,
}

func TestRateLimitCounter_Apply_AllowsUpToMax(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	counter := &RateLimitCounter{Scope: RateLimitScopeIP, Key: "203.0.113.1"}

	for i := 1; i <= testPolicy.MaxAttempts; i++ {
		decision := counter.Apply(testPolicy, now.Add(time.Duration(i)*time.Second))
		assert.True(t, decision.Allowed, "check %d should be allowed", i)
		assert.Equal(t, i, decision.AttemptCount)
	}
}

func TestRateLimitCounter_Apply_BlocksOnMaxPlusOne(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	counter := &RateLimitCounter{}

	for i := 0; i < testPolicy.MaxAttempts; i++ {
		counter.Apply(testPolicy, now)
	}

	decision := counter.Apply(testPolicy, now)
	assert.False(t, decision.Allowed)
	assert.Equal(t, testPolicy.BlockDuration, decision.RetryAfter)
	require.NotNil(t, counter.BlockedUntil)
	assert.Equal(t, now.Add(testPolicy.BlockDuration), *counter.BlockedUntil)
}

func TestRateLimitCounter_Apply_BlockedChecksDoNotIncrement(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	counter := &RateLimitCounter{}

	for i := 0; i <= testPolicy.MaxAttempts; i++ {
		counter.Apply(testPolicy, now)
	}
	countWhenBlocked := counter.AttemptCount

	decision := counter.Apply(testPolicy, now.Add(5*time.Minute))
	assert.False(t, decision.Allowed)
	assert.Equal(t, 10*time.Minute, decision.RetryAfter)
	assert.Equal(t, countWhenBlocked, counter.AttemptCount)
}

func TestRateLimitCounter_Apply_ResetsAfterBlockExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	counter := &RateLimitCounter{}

	for i := 0; i <= testPolicy.MaxAttempts; i++ {
		counter.Apply(testPolicy, now)
	}

	later := now.Add(testPolicy.BlockDuration)
	decision := counter.Apply(testPolicy, later)

	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.AttemptCount)
	assert.Nil(t, counter.BlockedUntil)
	assert.Equal(t, later, counter.WindowStart)
}

func TestRateLimitCounter_Apply_NewWindowResetsCount(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	counter := &RateLimitCounter{}

	counter.Apply(testPolicy, now)
	counter.Apply(testPolicy, now.Add(time.Minute))

	decision := counter.Apply(testPolicy, now.Add(testPolicy.Window))
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.AttemptCount)
}

func TestRateLimitPolicy_Retention(t *testing.T) {
	assert.Equal(t, time.Hour, testPolicy.Retention())

	long := RateLimitPolicy{MaxAttempts: 1, Window: time.Minute, BlockDuration: time.Hour}
	assert.Equal(t, time.Hour, long.Retention())
}

func TestFailureReason_Message(t *testing.T) {
	generic := []FailureReason{
		FailureInvalidInput,
		FailureIPRateLimitExceeded,
		FailureIdentifierRateLimitExceeded,
		FailureCredentialStuffingPattern,
		FailureUserNotFound,
		FailureAccountDeleted,
		FailureAccountLocked,
		FailureWrongPassword,
		FailureInternalError,
	}
	for _, reason := range generic {
		assert.False(t, reason.Informative(), string(reason))
		assert.Equal(t, GenericLoginFailureMessage, reason.Message(), string(reason))
	}

	assert.True(t, FailureAccountSuspended.Informative())
	assert.Equal(t, AccountSuspendedMessage, FailureAccountSuspended.Message())
	assert.True(t, FailureEmailNotVerified.Informative())
	assert.Equal(t, EmailNotVerifiedMessage, FailureEmailNotVerified.Message())
}

func TestAccountStatus_CountsFailuresMatchesSQLList(t *testing.T) {
	for _, status := range []AccountStatus{
		AccountStatusUnverified, AccountStatusActive, AccountStatusPasswordResetRequired,
		AccountStatusLocked, AccountStatusSuspended, AccountStatusDeleted,
	} {
		assert.Equal(t, !status.CountsFailures(), slices.Contains(NonCountingStatuses(), string(status)), string(status))
	}
}
