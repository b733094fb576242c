package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BradenHooton/gradegate/internal/models"
)

// FakeClock is a manually advanced clock. Sleep advances time instead of blocking.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Slept returns every duration passed to Sleep
func (c *FakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

// MockRateLimiter implements RateLimiter for testing
type MockRateLimiter struct {
	CheckFunc func(ctx context.Context, scope models.RateLimitScope, key string, policy models.RateLimitPolicy) (models.RateLimitDecision, error)
}

func (m *MockRateLimiter) Check(ctx context.Context, scope models.RateLimitScope, key string, policy models.RateLimitPolicy) (models.RateLimitDecision, error) {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, scope, key, policy)
	}
	return models.RateLimitDecision{Allowed: true, AttemptCount: 1}, nil
}

// MockStuffingCheck implements StuffingCheck for testing
type MockStuffingCheck struct {
	IsCredentialStuffingFunc func(ctx context.Context, ipAddress string, threshold int, window time.Duration) (bool, error)
}

func (m *MockStuffingCheck) IsCredentialStuffing(ctx context.Context, ipAddress string, threshold int, window time.Duration) (bool, error) {
	if m.IsCredentialStuffingFunc != nil {
		return m.IsCredentialStuffingFunc(ctx, ipAddress, threshold, window)
	}
	return false, nil
}

// MockAccountStateMachine implements AccountStateMachine for testing
type MockAccountStateMachine struct {
	LookupFunc          func(ctx context.Context, identifier string) (*models.Account, error)
	RecordFailureFunc   func(ctx context.Context, id string) (*models.Account, error)
	RecordSuccessFunc   func(ctx context.Context, id string, expected models.AccountStatus) error
	UnlockIfExpiredFunc func(ctx context.Context, id string) (bool, error)
}

func (m *MockAccountStateMachine) Lookup(ctx context.Context, identifier string) (*models.Account, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, identifier)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStateMachine) RecordFailure(ctx context.Context, id string) (*models.Account, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockAccountStateMachine) RecordSuccess(ctx context.Context, id string, expected models.AccountStatus) error {
	if m.RecordSuccessFunc != nil {
		return m.RecordSuccessFunc(ctx, id, expected)
	}
	return nil
}

func (m *MockAccountStateMachine) UnlockIfExpired(ctx context.Context, id string) (bool, error) {
	if m.UnlockIfExpiredFunc != nil {
		return m.UnlockIfExpiredFunc(ctx, id)
	}
	return false, nil
}

// MockCredentialVerifier implements CredentialVerifier for testing
type MockCredentialVerifier struct {
	VerifyFunc func(ctx context.Context, identifier, password string) (bool, error)
}

func (m *MockCredentialVerifier) Verify(ctx context.Context, identifier, password string) (bool, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, identifier, password)
	}
	return false, nil
}

// MockSessionIssuer implements SessionIssuer for testing
type MockSessionIssuer struct {
	IssueFunc        func(ctx context.Context, account *models.Account, requiresPasswordReset bool) (*models.Session, error)
	TerminateAllFunc func(ctx context.Context, accountID string) error
}

func (m *MockSessionIssuer) Issue(ctx context.Context, account *models.Account, requiresPasswordReset bool) (*models.Session, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, account, requiresPasswordReset)
	}
	return &models.Session{
		Token:                 "session-token",
		TokenID:               "jti",
		AccountID:             account.ID,
		RequiresPasswordReset: requiresPasswordReset,
	}, nil
}

func (m *MockSessionIssuer) TerminateAll(ctx context.Context, accountID string) error {
	if m.TerminateAllFunc != nil {
		return m.TerminateAllFunc(ctx, accountID)
	}
	return nil
}

// MockAttemptRecorder implements AttemptRecorder and keeps every attempt
type MockAttemptRecorder struct {
	RecordFunc func(ctx context.Context, attempt *models.LoginAttempt) error

	mu       sync.Mutex
	attempts []models.LoginAttempt
}

func (m *MockAttemptRecorder) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	m.mu.Lock()
	m.attempts = append(m.attempts, *attempt)
	m.mu.Unlock()
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, attempt)
	}
	return nil
}

// Attempts returns a copy of every recorded attempt
func (m *MockAttemptRecorder) Attempts() []models.LoginAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LoginAttempt(nil), m.attempts...)
}

// MockAccountAuditor implements AccountAuditor and keeps event types
type MockAccountAuditor struct {
	mu     sync.Mutex
	Events []string
}

func (m *MockAccountAuditor) RecordAccountAction(ctx context.Context, eventType, accountID string, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, eventType)
}

// MockNotifier implements VerificationNotifier and keeps the last token
type MockNotifier struct {
	SendFunc  func(ctx context.Context, identifier, token string, expiresAt time.Time) error
	LastToken string
	Sent      int
}

func (m *MockNotifier) SendVerification(ctx context.Context, identifier, token string, expiresAt time.Time) error {
	m.LastToken = token
	m.Sent++
	if m.SendFunc != nil {
		return m.SendFunc(ctx, identifier, token, expiresAt)
	}
	return nil
}

// MemoryRateLimitStore is an in-process RateLimitStore for tests
type MemoryRateLimitStore struct {
	mu       sync.Mutex
	counters map[string]*models.RateLimitCounter
}

func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{counters: make(map[string]*models.RateLimitCounter)}
}

func (s *MemoryRateLimitStore) Hit(ctx context.Context, scope models.RateLimitScope, key string, policy models.RateLimitPolicy, now time.Time) (models.RateLimitDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(scope) + ":" + key
	counter, ok := s.counters[k]
	if !ok {
		counter = &models.RateLimitCounter{Scope: scope, Key: key}
		s.counters[k] = counter
	}
	return counter.Apply(policy, now), nil
}

// MemoryAttemptLog is an in-process login attempt store for tests
type MemoryAttemptLog struct {
	mu       sync.Mutex
	attempts []models.LoginAttempt
}

func (l *MemoryAttemptLog) Append(ctx context.Context, attempt *models.LoginAttempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, *attempt)
	return nil
}

func (l *MemoryAttemptLog) CountDistinctIdentifiersByIP(ctx context.Context, ipAddress string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]struct{})
	for _, a := range l.attempts {
		if a.IPAddress == ipAddress && !a.AttemptedAt.Before(since) {
			seen[a.Identifier] = struct{}{}
		}
	}
	return len(seen), nil
}

func (l *MemoryAttemptLog) Attempts() []models.LoginAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.LoginAttempt(nil), l.attempts...)
}

// MemoryAccountStore is an in-process AccountStore with the same transition
// rules as the Postgres repository
type MemoryAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	nextID   int
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[string]*models.Account)}
}

func (s *MemoryAccountStore) copyOf(a *models.Account) *models.Account {
	c := *a
	return &c
}

func (s *MemoryAccountStore) GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Identifier == identifier {
			return s.copyOf(a), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryAccountStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s.copyOf(a), nil
}

func (s *MemoryAccountStore) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Identifier == account.Identifier {
			return nil, models.ErrConflict
		}
	}
	s.nextID++
	created := s.copyOf(account)
	if created.ID == "" {
		created.ID = fmt.Sprintf("acct-%d", s.nextID)
	}
	if created.Status == "" {
		created.Status = models.AccountStatusUnverified
	}
	s.accounts[created.ID] = created
	return s.copyOf(created), nil
}

// Put stores an account as-is
func (s *MemoryAccountStore) Put(account *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = s.copyOf(account)
}

func (s *MemoryAccountStore) RecordFailure(ctx context.Context, id string, policy models.LockPolicy, now time.Time) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || !a.Status.CountsFailures() {
		return nil, models.ErrNotFound
	}
	a.FailedLoginCount++
	if a.FailedLoginCount >= policy.Threshold {
		prev := a.Status
		until := now.Add(policy.Duration)
		a.StatusBeforeLock = &prev
		a.LockedUntil = &until
		a.Status = models.AccountStatusLocked
	}
	a.UpdatedAt = now
	return s.copyOf(a), nil
}

func (s *MemoryAccountStore) RecordSuccess(ctx context.Context, id string, expected models.AccountStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.Status != expected {
		return models.ErrInvalidTransition
	}
	a.FailedLoginCount = 0
	a.UpdatedAt = now
	return nil
}

func (s *MemoryAccountStore) UnlockIfExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.Status != models.AccountStatusLocked || a.LockedUntil == nil || now.Before(*a.LockedUntil) {
		return false, nil
	}
	a.Status = models.AccountStatusActive
	if a.StatusBeforeLock != nil {
		a.Status = *a.StatusBeforeLock
	}
	a.StatusBeforeLock = nil
	a.LockedUntil = nil
	a.FailedLoginCount = 0
	a.UpdatedAt = now
	return true, nil
}

func (s *MemoryAccountStore) MarkEmailVerified(ctx context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return false, nil
	}
	switch {
	case a.Status == models.AccountStatusUnverified:
		a.Status = models.AccountStatusActive
	case a.Status == models.AccountStatusLocked && a.StatusBeforeLock != nil && *a.StatusBeforeLock == models.AccountStatusUnverified:
		active := models.AccountStatusActive
		a.StatusBeforeLock = &active
	default:
		return false, nil
	}
	if a.EmailVerifiedAt == nil {
		a.EmailVerifiedAt = &now
	}
	a.UpdatedAt = now
	return true, nil
}

func (s *MemoryAccountStore) CompletePasswordChange(ctx context.Context, id, passwordHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || (a.Status != models.AccountStatusActive && a.Status != models.AccountStatusPasswordResetRequired) {
		return models.ErrInvalidTransition
	}
	a.PasswordHash = passwordHash
	a.PasswordChangedAt = &now
	a.Status = models.AccountStatusActive
	a.FailedLoginCount = 0
	a.UpdatedAt = now
	return nil
}

func (s *MemoryAccountStore) SetStatus(ctx context.Context, id string, status models.AccountStatus, now time.Time) error {
	if !status.Valid() || status == models.AccountStatusLocked {
		return models.ErrInvalidTransition
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.Status = status
	a.StatusBeforeLock = nil
	a.LockedUntil = nil
	a.FailedLoginCount = 0
	a.UpdatedAt = now
	return nil
}
