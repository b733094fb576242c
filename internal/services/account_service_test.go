package services

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/gradegate/internal/auth"
	"github.com/BradenHooton/gradegate/internal/models"
	pkgauth "github.com/BradenHooton/gradegate/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const currentPassword = "Grading#2026"

type accountFixture struct {
	svc      *AccountService
	store    *MemoryAccountStore
	clock    *FakeClock
	notifier *MockNotifier
	auditor  *MockAccountAuditor
	sessions *MockSessionIssuer
	tokens   *auth.TokenManager
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	clock := NewFakeClock(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	store := NewMemoryAccountStore()
	tokens := auth.NewTokenManager("account-test-secret-with-enough-length", time.Hour, 24*time.Hour, clock)
	state := NewAccountStateService(store, models.LockPolicy{Threshold: 5, Duration: 15 * time.Minute}, clock, testLogger())

	f := &accountFixture{
		store:    store,
		clock:    clock,
		notifier: &MockNotifier{},
		auditor:  &MockAccountAuditor{},
		sessions: &MockSessionIssuer{},
		tokens:   tokens,
	}
	f.svc = NewAccountService(store, state, tokens, f.sessions, f.notifier, f.auditor, testLogger())
	f.svc.SetHashCost(bcrypt.MinCost)
	return f
}

func (f *accountFixture) seed(t *testing.T, id string, status models.AccountStatus) {
	t.Helper()
	hash, err := pkgauth.HashPasswordWithCost(currentPassword, bcrypt.MinCost)
	require.NoError(t, err)
	f.store.Put(&models.Account{ID: id, Identifier: id + "@example.com", PasswordHash: hash, Status: status})
}

func TestAccountService_RegisterAndVerify(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Register(ctx, "  New.Student@Example.com ", currentPassword))

	account, err := f.store.GetByIdentifier(ctx, "new.student@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusUnverified, account.Status)
	assert.NotEqual(t, currentPassword, account.PasswordHash)
	assert.Equal(t, 1, f.notifier.Sent)
	require.NotEmpty(t, f.notifier.LastToken)

	require.NoError(t, f.svc.VerifyEmail(ctx, f.notifier.LastToken))
	account, _ = f.store.GetByID(ctx, account.ID)
	assert.Equal(t, models.AccountStatusActive, account.Status)
	require.NotNil(t, account.EmailVerifiedAt)

	// A replayed token is accepted without changing anything
	verifiedAt := *account.EmailVerifiedAt
	f.clock.Advance(time.Minute)
	require.NoError(t, f.svc.VerifyEmail(ctx, f.notifier.LastToken))
	account, _ = f.store.GetByID(ctx, account.ID)
	assert.Equal(t, verifiedAt, *account.EmailVerifiedAt)

	assert.Equal(t, []string{"account_registered", "email_verified"}, f.auditor.Events)
}

func TestAccountService_RegisterDuplicateIsSilent(t *testing.T) {
	f := newAccountFixture(t)
	f.seed(t, "taken", models.AccountStatusActive)

	err := f.svc.Register(context.Background(), "TAKEN@example.com", currentPassword)

	require.NoError(t, err)
	assert.Equal(t, 0, f.notifier.Sent)
}

func TestAccountService_RegisterRejectsBadInput(t *testing.T) {
	f := newAccountFixture(t)

	err := f.svc.Register(context.Background(), "not-an-email", currentPassword)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	err = f.svc.Register(context.Background(), "student@example.com", "short")
	var pwErr *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &pwErr)
}

func TestAccountService_VerifyEmailRejectsSessionToken(t *testing.T) {
	f := newAccountFixture(t)
	f.seed(t, "u", models.AccountStatusUnverified)

	sessionToken, _, err := f.tokens.GenerateSessionToken("u", "u@example.com", false)
	require.NoError(t, err)

	err = f.svc.VerifyEmail(context.Background(), sessionToken)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	account, _ := f.store.GetByID(context.Background(), "u")
	assert.Equal(t, models.AccountStatusUnverified, account.Status)
}

func TestAccountService_ChangePassword(t *testing.T) {
	f := newAccountFixture(t)
	f.seed(t, "prr", models.AccountStatusPasswordResetRequired)
	var terminated []string
	f.sessions.TerminateAllFunc = func(ctx context.Context, accountID string) error {
		terminated = append(terminated, accountID)
		return nil
	}

	err := f.svc.ChangePassword(context.Background(), "prr", currentPassword, "Fresh#Password9")
	require.NoError(t, err)

	account, _ := f.store.GetByID(context.Background(), "prr")
	assert.Equal(t, models.AccountStatusActive, account.Status)
	ok, err := pkgauth.PasswordMatches(account.PasswordHash, "Fresh#Password9")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"prr"}, terminated)
	assert.Equal(t, []string{"password_changed"}, f.auditor.Events)
}

func TestAccountService_ChangePasswordErrors(t *testing.T) {
	f := newAccountFixture(t)
	f.seed(t, "a", models.AccountStatusActive)
	f.seed(t, "s", models.AccountStatusSuspended)
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, "a", "Wrong#Password1", "Fresh#Password9")
	assert.ErrorIs(t, err, models.ErrPasswordIncorrect)

	err = f.svc.ChangePassword(ctx, "a", currentPassword, "weak")
	var pwErr *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &pwErr)

	err = f.svc.ChangePassword(ctx, "a", currentPassword, currentPassword)
	assert.ErrorAs(t, err, &pwErr)

	err = f.svc.ChangePassword(ctx, "s", currentPassword, "Fresh#Password9")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	err = f.svc.ChangePassword(ctx, "missing", currentPassword, "Fresh#Password9")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Empty(t, f.auditor.Events)
}

func TestAccountService_SetStatus(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	f.seed(t, "op", models.AccountStatusActive)

	var terminated []string
	f.sessions.TerminateAllFunc = func(ctx context.Context, accountID string) error {
		terminated = append(terminated, accountID)
		return nil
	}

	account, err := f.svc.SetStatus(ctx, " OP@example.com", models.AccountStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusSuspended, account.Status)
	assert.Equal(t, []string{"op"}, terminated)

	// Reactivating leaves sessions alone
	_, err = f.svc.SetStatus(ctx, "op@example.com", models.AccountStatusActive)
	require.NoError(t, err)
	assert.Len(t, terminated, 1)

	stored, _ := f.store.GetByID(ctx, "op")
	assert.Equal(t, models.AccountStatusActive, stored.Status)
	assert.Equal(t, []string{"status_changed", "status_changed"}, f.auditor.Events)
}

func TestAccountService_SetStatusClearsLock(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	f.seed(t, "locked", models.AccountStatusActive)
	for i := 0; i < 5; i++ {
		_, err := f.svc.state.RecordFailure(ctx, "locked")
		require.NoError(t, err)
	}

	_, err := f.svc.SetStatus(ctx, "locked@example.com", models.AccountStatusActive)
	require.NoError(t, err)

	stored, _ := f.store.GetByID(ctx, "locked")
	assert.Equal(t, models.AccountStatusActive, stored.Status)
	assert.Nil(t, stored.LockedUntil)
	assert.Zero(t, stored.FailedLoginCount)
}

func TestAccountService_SetStatusErrors(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	f.seed(t, "x", models.AccountStatusActive)

	_, err := f.svc.SetStatus(ctx, "missing@example.com", models.AccountStatusSuspended)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.SetStatus(ctx, "x@example.com", models.AccountStatusLocked)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.svc.SetStatus(ctx, "x@example.com", models.AccountStatus("BOGUS"))
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Empty(t, f.auditor.Events)
}
