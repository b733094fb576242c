package repositories

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "sessions"

// SessionRegistry tracks live session token IDs per account in a Redis sorted
// set scored by expiry, so a whole account can be signed out at once
type SessionRegistry struct {
	client *redis.Client
}

func NewSessionRegistry(client *redis.Client) *SessionRegistry {
	return &SessionRegistry{client: client}
}

func sessionKey(accountID string) string {
	return sessionKeyPrefix + ":" + accountID
}

// Register records a session until expiresAt and prunes expired entries
func (r *SessionRegistry) Register(ctx context.Context, accountID, tokenID string, expiresAt, now time.Time) error {
	key := sessionKey(accountID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Unix(), 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(expiresAt.Unix()), Member: tokenID})
		pipe.ExpireAt(ctx, key, expiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

// IsActive reports whether the session is registered and unexpired at now
func (r *SessionRegistry) IsActive(ctx context.Context, accountID, tokenID string, now time.Time) (bool, error) {
	score, err := r.client.ZScore(ctx, sessionKey(accountID), tokenID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return int64(score) > now.Unix(), nil
}

// Revoke removes one session
func (r *SessionRegistry) Revoke(ctx context.Context, accountID, tokenID string) error {
	if err := r.client.ZRem(ctx, sessionKey(accountID), tokenID).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAll removes every session of an account
func (r *SessionRegistry) RevokeAll(ctx context.Context, accountID string) error {
	if err := r.client.Del(ctx, sessionKey(accountID)).Err(); err != nil {
		return fmt.Errorf("revoke all sessions: %w", err)
	}
	return nil
}

// Count returns the number of registered sessions for an account
func (r *SessionRegistry) Count(ctx context.Context, accountID string) (int64, error) {
	n, err := r.client.ZCard(ctx, sessionKey(accountID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
