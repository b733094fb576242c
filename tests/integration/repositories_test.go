package integration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/BradenHooton/gradegate/internal/repositories"
)

func TestAccountRepository_ConcurrentFailuresLockExactlyAtThreshold(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	identifier, password := TestCredentials("lock")
	account, err := SeedAccount(ctx, db.DB, identifier, password, models.AccountStatusActive)
	require.NoError(t, err)

	repo := repositories.NewAccountRepository(db.DB)
	policy := models.LockPolicy{Threshold: 5, Duration: 15 * time.Minute}
	now := time.Now().UTC()

	var counted, locked atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			updated, err := repo.RecordFailure(ctx, account.ID, policy, now)
			if err != nil {
				assert.ErrorIs(t, err, models.ErrNotFound)
				return
			}
			counted.Add(1)
			if updated.Status == models.AccountStatusLocked {
				locked.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), counted.Load(), "failures stop counting once locked")
	assert.Equal(t, int32(1), locked.Load(), "exactly one failure performs the lock")

	stored, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusLocked, stored.Status)
	assert.Equal(t, 5, stored.FailedLoginCount)
	require.NotNil(t, stored.LockedUntil)
	require.NotNil(t, stored.StatusBeforeLock)
	assert.Equal(t, models.AccountStatusActive, *stored.StatusBeforeLock)
}

func TestAccountRepository_ConcurrentUnlockHappensOnce(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	identifier, password := TestCredentials("unlock")
	account, err := SeedAccount(ctx, db.DB, identifier, password, models.AccountStatusPasswordResetRequired)
	require.NoError(t, err)

	repo := repositories.NewAccountRepository(db.DB)
	lockedAt := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := repo.RecordFailure(ctx, account.ID, models.LockPolicy{Threshold: 5, Duration: 15 * time.Minute}, lockedAt)
		require.NoError(t, err)
	}

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlocked, err := repo.UnlockIfExpired(ctx, account.ID, time.Now().UTC())
			assert.NoError(t, err)
			if unlocked {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())

	stored, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusPasswordResetRequired, stored.Status, "pre-lock status is restored")
	assert.Nil(t, stored.LockedUntil)
	assert.Equal(t, 0, stored.FailedLoginCount)
}

func TestAccountRepository_DuplicateIdentifier(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	identifier, password := TestCredentials("dup")
	_, err := SeedAccount(ctx, db.DB, identifier, password, models.AccountStatusActive)
	require.NoError(t, err)

	_, err = SeedAccount(ctx, db.DB, identifier, password, models.AccountStatusActive)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAccountRepository_MarkEmailVerifiedOnce(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	identifier, password := TestCredentials("verify")
	account, err := SeedAccount(ctx, db.DB, identifier, password, models.AccountStatusUnverified)
	require.NoError(t, err)

	repo := repositories.NewAccountRepository(db.DB)
	first := time.Now().UTC().Truncate(time.Microsecond)

	changed, err := repo.MarkEmailVerified(ctx, account.ID, first)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkEmailVerified(ctx, account.ID, first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusActive, stored.Status)
	require.NotNil(t, stored.EmailVerifiedAt)
	assert.True(t, stored.EmailVerifiedAt.Equal(first))
}

func TestRateLimitRepository_ConcurrentHitsCountExactly(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	repo := repositories.NewRateLimitRepository(db.DB)
	policy := models.RateLimitPolicy{MaxAttempts: 10, Window: time.Hour, BlockDuration: 15 * time.Minute}
	now := time.Now().UTC()

	var allowed, denied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := repo.Hit(ctx, models.RateLimitScopeIP, "203.0.113.50", policy, now)
			if !assert.NoError(t, err) {
				return
			}
			if decision.Allowed {
				allowed.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), allowed.Load())
	assert.Equal(t, int32(15), denied.Load())

	decision, err := repo.Hit(ctx, models.RateLimitScopeIP, "203.0.113.50", policy, now.Add(15*time.Minute))
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "block has elapsed")
	assert.Equal(t, 1, decision.AttemptCount)

	decision, err = repo.Hit(ctx, models.RateLimitScopeIdentifier, "203.0.113.50", policy, now)
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "scopes do not share counters")
}

func TestRateLimitRepository_PurgeIdle(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	repo := repositories.NewRateLimitRepository(db.DB)
	policy := models.RateLimitPolicy{MaxAttempts: 1, Window: time.Minute, BlockDuration: time.Hour}
	old := time.Now().UTC().Add(-2 * time.Hour)

	_, err := repo.Hit(ctx, models.RateLimitScopeIP, "idle", policy, old)
	require.NoError(t, err)
	_, err = repo.Hit(ctx, models.RateLimitScopeIP, "blocked", policy, time.Now().UTC())
	require.NoError(t, err)
	_, err = repo.Hit(ctx, models.RateLimitScopeIP, "blocked", policy, time.Now().UTC())
	require.NoError(t, err)

	purged, err := repo.PurgeIdle(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestLoginAttemptRepository_DistinctIdentifiersAndRetention(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	repo := repositories.NewLoginAttemptRepository(db.DB)
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		for j := 0; j < 2; j++ {
			require.NoError(t, repo.Append(ctx, &models.LoginAttempt{
				AttemptedAt: now,
				IPAddress:   "198.51.100.1",
				UserAgent:   "integration",
				Identifier:  fmt.Sprintf("user%d@example.com", i),
				Outcome:     models.LoginOutcomeFailure,
			}))
		}
	}
	require.NoError(t, repo.Append(ctx, &models.LoginAttempt{
		AttemptedAt: now.Add(-time.Hour),
		IPAddress:   "198.51.100.1",
		Identifier:  "old@example.com",
		Outcome:     models.LoginOutcomeFailure,
	}))

	count, err := repo.CountDistinctIdentifiersByIP(ctx, "198.51.100.1", now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestAccountRepository_SetStatusClearsLock(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	identifier, password := TestCredentials("setstatus")
	account, err := SeedAccount(ctx, db.DB, identifier, password, models.AccountStatusActive)
	require.NoError(t, err)

	repo := repositories.NewAccountRepository(db.DB)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, err := repo.RecordFailure(ctx, account.ID, models.LockPolicy{Threshold: 5, Duration: time.Hour}, now)
		require.NoError(t, err)
	}

	require.NoError(t, repo.SetStatus(ctx, account.ID, models.AccountStatusSuspended, now))

	stored, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusSuspended, stored.Status)
	assert.Nil(t, stored.LockedUntil)
	assert.Nil(t, stored.StatusBeforeLock)
	assert.Zero(t, stored.FailedLoginCount)

	assert.ErrorIs(t, repo.SetStatus(ctx, account.ID, models.AccountStatusLocked, now), models.ErrInvalidTransition)
	assert.ErrorIs(t, repo.SetStatus(ctx, "00000000-0000-0000-0000-000000000000", models.AccountStatusActive, now), models.ErrNotFound)
}

func TestAccountRepository_RecordSuccessRequiresExpectedStatus(t *testing.T) {
	db := freshDB(t)
	ctx := context.Background()
	identifier, password := TestCredentials("success")
	account, err := SeedAccount(ctx, db.DB, identifier, password, models.AccountStatusActive)
	require.NoError(t, err)

	repo := repositories.NewAccountRepository(db.DB)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, err := repo.RecordFailure(ctx, account.ID, models.LockPolicy{Threshold: 5, Duration: time.Hour}, now)
		require.NoError(t, err)
	}

	// A success decided against the pre-lock snapshot must not touch the locked row
	err = repo.RecordSuccess(ctx, account.ID, models.AccountStatusActive, now)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	stored, err := repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusLocked, stored.Status)
	assert.Equal(t, 5, stored.FailedLoginCount)

	require.NoError(t, repo.SetStatus(ctx, account.ID, models.AccountStatusActive, now))
	_, err = repo.RecordFailure(ctx, account.ID, models.LockPolicy{Threshold: 5, Duration: time.Hour}, now)
	require.NoError(t, err)
	require.NoError(t, repo.RecordSuccess(ctx, account.ID, models.AccountStatusActive, now))

	stored, err = repo.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLoginCount)
}
