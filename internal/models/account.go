package models

import "time"

// AccountStatus is the lifecycle state of a portal account
type AccountStatus string

const (
	AccountStatusUnverified            AccountStatus = "UNVERIFIED"
	AccountStatusActive                AccountStatus = "ACTIVE"
	AccountStatusPasswordResetRequired AccountStatus = "PASSWORD_RESET_REQUIRED"
	AccountStatusLocked                AccountStatus = "LOCKED"
	AccountStatusSuspended             AccountStatus = "SUSPENDED"
	AccountStatusDeleted               AccountStatus = "DELETED"
)

// Valid reports whether s is one of the known statuses
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusUnverified, AccountStatusActive, AccountStatusPasswordResetRequired,
		AccountStatusLocked, AccountStatusSuspended, AccountStatusDeleted:
		return true
	}
	return false
}

// statuses in which failed logins no longer touch the counter
var nonCountingStatuses = []AccountStatus{AccountStatusLocked, AccountStatusSuspended, AccountStatusDeleted}

// CountsFailures reports whether failed logins may still increment the counter in this status
func (s AccountStatus) CountsFailures() bool {
	for _, nc := range nonCountingStatuses {
		if s == nc {
			return false
		}
	}
	return true
}

// NonCountingStatuses lists the statuses CountsFailures rejects, as strings for SQL parameters
func NonCountingStatuses() []string {
	out := make([]string, len(nonCountingStatuses))
	for i, s := range nonCountingStatuses {
		out[i] = string(s)
	}
	return out
}

// Account is a snapshot of a customer account row
type Account struct {
	ID                string
	Identifier        string
	PasswordHash      string
	Status            AccountStatus
	FailedLoginCount  int
	LockedUntil       *time.Time     // set iff Status == LOCKED
	StatusBeforeLock  *AccountStatus // restored on automatic unlock
	EmailVerifiedAt   *time.Time
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LockPolicy controls when repeated password failures lock an account
type LockPolicy struct {
	Threshold int
	Duration  time.Duration
}
