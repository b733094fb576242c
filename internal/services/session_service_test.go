package services

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/gradegate/internal/auth"
	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/BradenHooton/gradegate/internal/repositories"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionService(t *testing.T) (*SessionService, *FakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := NewFakeClock(time.Now())
	tokens := auth.NewTokenManager("session-test-secret-with-enough-length", time.Hour, time.Hour, clock)
	return NewSessionService(tokens, repositories.NewSessionRegistry(client), clock, testLogger()), clock
}

func TestSessionService_IssueAndValidate(t *testing.T) {
	svc, _ := newSessionService(t)
	account := &models.Account{ID: "acct-1", Identifier: "student@example.com"}
	ctx := context.Background()

	session, err := svc.Issue(ctx, account, true)
	require.NoError(t, err)
	assert.True(t, session.RequiresPasswordReset)
	assert.NotEmpty(t, session.TokenID)

	claims, err := svc.Validate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.True(t, claims.RequiresPasswordReset)

	count, err := svc.ActiveCount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSessionService_Terminate(t *testing.T) {
	svc, _ := newSessionService(t)
	account := &models.Account{ID: "acct-1", Identifier: "student@example.com"}
	ctx := context.Background()

	first, err := svc.Issue(ctx, account, false)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, account, false)
	require.NoError(t, err)

	claims, err := svc.Validate(ctx, first.Token)
	require.NoError(t, err)
	require.NoError(t, svc.Terminate(ctx, claims))

	_, err = svc.Validate(ctx, first.Token)
	assert.ErrorIs(t, err, models.ErrSessionInvalid)
	_, err = svc.Validate(ctx, second.Token)
	assert.NoError(t, err)

	require.NoError(t, svc.TerminateAll(ctx, "acct-1"))
	_, err = svc.Validate(ctx, second.Token)
	assert.ErrorIs(t, err, models.ErrSessionInvalid)
}

func TestSessionService_RejectsExpiredAndForeignTokens(t *testing.T) {
	svc, clock := newSessionService(t)
	ctx := context.Background()

	session, err := svc.Issue(ctx, &models.Account{ID: "acct-1", Identifier: "student@example.com"}, false)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, models.ErrSessionInvalid)

	clock.Advance(2 * time.Hour)
	_, err = svc.Validate(ctx, session.Token)
	assert.ErrorIs(t, err, models.ErrSessionInvalid)
}
