package models

import "time"

// RateLimitScope separates the IP and identifier counter namespaces
type RateLimitScope string

const (
	RateLimitScopeIP         RateLimitScope = "ip"
	RateLimitScopeIdentifier RateLimitScope = "identifier"
)

// RateLimitPolicy describes a fixed-window limit with a cooldown block
type RateLimitPolicy struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// Retention is how long an idle counter stays meaningful
func (p RateLimitPolicy) Retention() time.Duration {
	if p.BlockDuration > p.Window {
		return p.BlockDuration
	}
	return p.Window
}

// RateLimitCounter is the stored state of one limiter key
type RateLimitCounter struct {
	Scope        RateLimitScope
	Key          string
	WindowStart  time.Time
	AttemptCount int
	BlockedUntil *time.Time
	UpdatedAt    time.Time
}

// RateLimitDecision is the outcome of a single check
type RateLimitDecision struct {
	Allowed      bool
	RetryAfter   time.Duration
	AttemptCount int
}

// Apply counts one check against the counter at now and returns the decision.
// Blocked keys are not incremented. An elapsed block or window starts a fresh window.
// Stores must call Apply while holding exclusive access to the counter.
func (c *RateLimitCounter) Apply(policy RateLimitPolicy, now time.Time) RateLimitDecision {
	if c.BlockedUntil != nil {
		if now.Before(*c.BlockedUntil) {
			return RateLimitDecision{
				Allowed:      false,
				RetryAfter:   c.BlockedUntil.Sub(now),
				AttemptCount: c.AttemptCount,
			}
		}
		c.BlockedUntil = nil
		c.WindowStart = time.Time{}
	}

	if c.WindowStart.IsZero() || !now.Before(c.WindowStart.Add(policy.Window)) {
		c.WindowStart = now
		c.AttemptCount = 0
	}

	c.AttemptCount++
	c.UpdatedAt = now

	if c.AttemptCount > policy.MaxAttempts {
		blockedUntil := now.Add(policy.BlockDuration)
		c.BlockedUntil = &blockedUntil
		return RateLimitDecision{
			Allowed:      false,
			RetryAfter:   policy.BlockDuration,
			AttemptCount: c.AttemptCount,
		}
	}

	return RateLimitDecision{Allowed: true, AttemptCount: c.AttemptCount}
}
