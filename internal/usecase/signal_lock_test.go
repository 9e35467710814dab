package usecase

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalPulse/internal/domain/models"
)

type staticThreshold float64

func (s staticThreshold) Threshold() float64 { return float64(s) }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func defaultPolicy() LockPolicy {
	return LockPolicy{MinDuration: 5 * time.Minute, MaxDuration: 30 * time.Minute, StabilityThreshold: 70}
}

func strongScore(id string) models.ConsensusScore {
	return models.ConsensusScore{InstrumentID: id, Direction: models.DirectionBullish, Confidence: 90, Stability: 80}
}

func TestLockDurationMonotonic(t *testing.T) {
	m := NewSignalLockManager(defaultPolicy(), staticThreshold(80))
	assert.Equal(t, 5*time.Minute, m.Duration(0))
	assert.Equal(t, 5*time.Minute, m.Duration(80))
	assert.Equal(t, 30*time.Minute, m.Duration(100))

	prev := time.Duration(0)
	for c := 0.0; c <= 100; c += 0.5 {
		d := m.Duration(c)
		assert.GreaterOrEqual(t, d, prev, "confidence %v", c)
		assert.GreaterOrEqual(t, d, 5*time.Minute)
		assert.LessOrEqual(t, d, 30*time.Minute)
		prev = d
	}

	edge := NewSignalLockManager(defaultPolicy(), staticThreshold(100))
	assert.Equal(t, 5*time.Minute, edge.Duration(99))
	assert.Equal(t, 30*time.Minute, edge.Duration(100))
}

func TestTryAcquireRules(t *testing.T) {
	clk := newFakeClock()
	m := NewSignalLockManager(defaultPolicy(), staticThreshold(80), WithLockClock(clk.Now))

	weak := strongScore("BTCUSDT")
	weak.Stability = 60
	_, err := m.TryAcquire(weak)
	assert.ErrorIs(t, err, ErrNotEligible)

	neutral := strongScore("BTCUSDT")
	neutral.Direction = models.DirectionNeutral
	_, err = m.TryAcquire(neutral)
	assert.ErrorIs(t, err, ErrNotEligible)

	l, err := m.TryAcquire(strongScore("BTCUSDT"))
	require.NoError(t, err)
	assert.Equal(t, models.LockActive, l.State)
	assert.Equal(t, t0.Add(m.Duration(90)), l.ExpiresAt)

	_, err = m.TryAcquire(strongScore("BTCUSDT"))
	assert.ErrorIs(t, err, models.ErrLockConflict)

	_, err = m.TryAcquire(strongScore("ETHUSDT"))
	assert.NoError(t, err, "instruments lock independently")

	clk.Advance(l.ExpiresAt.Sub(t0))
	_, ok := m.Active("BTCUSDT")
	assert.False(t, ok, "expired at expires-at")

	_, err = m.TryAcquire(strongScore("BTCUSDT"))
	assert.NoError(t, err)
}

func TestReleaseEndsLockEarly(t *testing.T) {
	clk := newFakeClock()
	m := NewSignalLockManager(defaultPolicy(), staticThreshold(80), WithLockClock(clk.Now))
	l, err := m.TryAcquire(strongScore("XAUUSD"))
	require.NoError(t, err)

	assert.False(t, m.Release("XAUUSD", "other"))
	clk.Advance(time.Minute)
	assert.True(t, m.Release("XAUUSD", l.ID))
	assert.False(t, m.Release("XAUUSD", l.ID), "second release is a no-op")

	_, ok := m.Active("XAUUSD")
	assert.False(t, ok)
	_, err = m.TryAcquire(strongScore("XAUUSD"))
	assert.NoError(t, err)
}

func TestAtMostOneActiveLockUnderContention(t *testing.T) {
	m := NewSignalLockManager(defaultPolicy(), staticThreshold(80))
	ids := []string{"BTCUSDT", "ETHUSDT", "XAUUSD", "EURUSD"}

	var wins [4]int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for g := 0; g < 64; g++ {
		for i, id := range ids {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				<-start
				if _, err := m.TryAcquire(strongScore(id)); err == nil {
					atomic.AddInt32(&wins[i], 1)
				}
			}(i, id)
		}
	}
	close(start)
	wg.Wait()

	for i, id := range ids {
		assert.Equal(t, int32(1), wins[i], id)
		_, ok := m.Active(id)
		assert.True(t, ok)
	}
}
