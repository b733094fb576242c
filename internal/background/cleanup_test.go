package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func (c fixedClock) Sleep(ctx context.Context, d time.Duration) error { return nil }

type recordingPurger struct {
	mu     sync.Mutex
	cutoff []time.Time
	err    error
}

func (p *recordingPurger) record(before time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoff = append(p.cutoff, before)
	return 3, p.err
}

func (p *recordingPurger) PurgeIdle(ctx context.Context, before time.Time) (int64, error) {
	return p.record(before)
}

func (p *recordingPurger) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return p.record(before)
}

func (p *recordingPurger) calls() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.cutoff...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanupManager_RunOnceUsesRetentionCutoffs(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	counters := &recordingPurger{}
	attempts := &recordingPurger{}
	cm := NewCleanupManager(counters, attempts, CleanupConfig{
		Interval:         time.Hour,
		CounterRetention: time.Hour,
		AuditRetention:   90 * 24 * time.Hour,
	}, fixedClock{now: now}, discardLogger())

	cm.RunOnce(context.Background())

	assert.Equal(t, []time.Time{now.Add(-time.Hour)}, counters.calls())
	assert.Equal(t, []time.Time{now.Add(-90 * 24 * time.Hour)}, attempts.calls())
}

func TestCleanupManager_WithoutCounterStore(t *testing.T) {
	attempts := &recordingPurger{}
	cm := NewCleanupManager(nil, attempts, CleanupConfig{Interval: time.Hour, AuditRetention: time.Hour},
		fixedClock{now: time.Now()}, discardLogger())

	cm.RunOnce(context.Background())

	assert.Len(t, attempts.calls(), 1)
}

func TestCleanupManager_ErrorsDoNotStopOtherPurges(t *testing.T) {
	counters := &recordingPurger{err: errors.New("deadlock detected")}
	attempts := &recordingPurger{}
	cm := NewCleanupManager(counters, attempts, CleanupConfig{Interval: time.Hour, CounterRetention: time.Hour, AuditRetention: time.Hour},
		fixedClock{now: time.Now()}, discardLogger())

	cm.RunOnce(context.Background())

	assert.Len(t, counters.calls(), 1)
	assert.Len(t, attempts.calls(), 1)
}

func TestCleanupManager_StartRunsImmediatelyAndStops(t *testing.T) {
	attempts := &recordingPurger{}
	cm := NewCleanupManager(nil, attempts, CleanupConfig{Interval: time.Hour, AuditRetention: time.Hour},
		fixedClock{now: time.Now()}, discardLogger())

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(attempts.calls()) == 1 }, time.Second, 10*time.Millisecond)

	cm.Stop()
	cm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}
