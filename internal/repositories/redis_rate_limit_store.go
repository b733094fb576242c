package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/gradegate/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	rateLimitKeyPrefix = "ratelimit"
	maxTxRetries       = 10

	fieldWindowStart  = "window_start"
	fieldAttemptCount = "attempt_count"
	fieldBlockedUntil = "blocked_until"
)

// ErrCounterContention is returned when optimistic retries are exhausted
var ErrCounterContention = errors.New("rate limit counter contention")

// RedisRateLimitStore keeps rate-limit counters as Redis hashes updated under WATCH/MULTI
type RedisRateLimitStore struct {
	client *redis.Client
}

func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

func counterKey(scope models.RateLimitScope, key string) string {
	return fmt.Sprintf("%s:%s:%s", rateLimitKeyPrefix, scope, key)
}

// Hit counts one check against scope/key and returns the decision
func (s *RedisRateLimitStore) Hit(ctx context.Context, scope models.RateLimitScope, key string, policy models.RateLimitPolicy, now time.Time) (models.RateLimitDecision, error) {
	redisKey := counterKey(scope, key)
	var decision models.RateLimitDecision

	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, redisKey).Result()
		if err != nil {
			return err
		}

		counter, err := decodeCounter(scope, key, fields)
		if err != nil {
			return err
		}

		decision = counter.Apply(policy, now)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, redisKey,
				fieldWindowStart, counter.WindowStart.UnixNano(),
				fieldAttemptCount, counter.AttemptCount,
			)
			if counter.BlockedUntil != nil {
				pipe.HSet(ctx, redisKey, fieldBlockedUntil, counter.BlockedUntil.UnixNano())
			} else {
				pipe.HDel(ctx, redisKey, fieldBlockedUntil)
			}
			pipe.Expire(ctx, redisKey, policy.Retention())
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, redisKey)
		if err == nil {
			return decision, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return models.RateLimitDecision{}, fmt.Errorf("rate limit hit %s/%s: %w", scope, key, err)
	}

	return models.RateLimitDecision{}, fmt.Errorf("rate limit hit %s/%s: %w", scope, key, ErrCounterContention)
}

func decodeCounter(scope models.RateLimitScope, key string, fields map[string]string) (models.RateLimitCounter, error) {
	counter := models.RateLimitCounter{Scope: scope, Key: key}
	if len(fields) == 0 {
		return counter, nil
	}

	if v, ok := fields[fieldWindowStart]; ok {
		ns, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return counter, fmt.Errorf("decode %s: %w", fieldWindowStart, err)
		}
		counter.WindowStart = time.Unix(0, ns)
	}

	if v, ok := fields[fieldAttemptCount]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return counter, fmt.Errorf("decode %s: %w", fieldAttemptCount, err)
		}
		counter.AttemptCount = n
	}

	if v, ok := fields[fieldBlockedUntil]; ok {
		ns, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return counter, fmt.Errorf("decode %s: %w", fieldBlockedUntil, err)
		}
		blockedUntil := time.Unix(0, ns)
		counter.BlockedUntil = &blockedUntil
	}

	return counter, nil
}
