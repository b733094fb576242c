package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// DefaultTimingFloor is the minimum latency of every equalized rejection
const DefaultTimingFloor = 150 * time.Millisecond

// TimingConfig holds configuration for response time equalization
type TimingConfig struct {
	Floor  time.Duration // Minimum total latency of an equalized response
	Jitter time.Duration // Extra random delay in [0, Jitter)
}

// TimingEqualizer pads rejections so that the unknown-account path and the
// locked or deleted paths cannot be told apart by latency
type TimingEqualizer struct {
	config TimingConfig
	clock  Clock
}

// NewTimingEqualizer creates a new TimingEqualizer instance
func NewTimingEqualizer(config TimingConfig, clock Clock) *TimingEqualizer {
	if config.Floor <= 0 {
		config.Floor = DefaultTimingFloor
	}
	return &TimingEqualizer{
		config: config,
		clock:  clock,
	}
}

// cryptoRandIntn returns a secure random number between 0 and max (exclusive)
func cryptoRandIntn(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return int64(randomValue % uint64(max)), nil
}

// Target returns the total latency a response should reach
func (te *TimingEqualizer) Target() time.Duration {
	target := te.config.Floor
	if te.config.Jitter > 0 {
		if n, err := cryptoRandIntn(int64(te.config.Jitter)); err == nil {
			target += time.Duration(n)
		}
	}
	return target
}

// Equalize sleeps until target latency has passed since start. It never shortens a response.
func (te *TimingEqualizer) Equalize(ctx context.Context, start time.Time) error {
	remaining := te.Target() - te.clock.Now().Sub(start)
	if remaining <= 0 {
		return nil
	}
	return te.clock.Sleep(ctx, remaining)
}
