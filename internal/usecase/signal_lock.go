package usecase

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"SignalPulse/internal/domain/models"
)

// ErrNotEligible means a consensus score is below the confidence or stability bar.
var ErrNotEligible = errors.New("consensus not eligible for lock")

// ThresholdSource supplies the current confidence threshold.
type ThresholdSource interface {
	Threshold() float64
}

type LockPolicy struct {
	MinDuration        time.Duration
	MaxDuration        time.Duration
	StabilityThreshold float64
}

// SignalLockManager holds at most one ACTIVE lock per instrument.
type SignalLockManager struct {
	policy    LockPolicy
	threshold ThresholdSource
	now       func() time.Time

	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	mu   sync.Mutex
	lock *models.SignalLock
}

type LockOption func(*SignalLockManager)

func WithLockClock(now func() time.Time) LockOption {
	return func(m *SignalLockManager) { m.now = now }
}

func NewSignalLockManager(policy LockPolicy, threshold ThresholdSource, opts ...LockOption) *SignalLockManager {
	m := &SignalLockManager{
		policy:    policy,
		threshold: threshold,
		now:       time.Now,
		slots:     make(map[string]*lockSlot),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Duration maps confidence onto [MinDuration, MaxDuration]: the threshold
// gets the minimum, 100 gets the maximum, linear in between.
func (m *SignalLockManager) Duration(confidence float64) time.Duration {
	lo, hi := m.policy.MinDuration, m.policy.MaxDuration
	t := m.threshold.Threshold()
	var frac float64
	switch {
	case t >= 100:
		if confidence >= 100 {
			frac = 1
		}
	default:
		frac = clamp((confidence-t)/(100-t), 0, 1)
	}
	return lo + time.Duration(frac*float64(hi-lo))
}

// Eligible reports whether score clears the direction, confidence and stability bars.
func (m *SignalLockManager) Eligible(score models.ConsensusScore) bool {
	return score.Direction != models.DirectionNeutral &&
		score.Confidence >= m.threshold.Threshold() &&
		score.Stability >= m.policy.StabilityThreshold
}

// TryAcquire locks the instrument for score. It fails with ErrNotEligible
// when the score is too weak and ErrLockConflict while another lock is ACTIVE.
func (m *SignalLockManager) TryAcquire(score models.ConsensusScore) (models.SignalLock, error) {
	if !m.Eligible(score) {
		return models.SignalLock{}, ErrNotEligible
	}
	slot := m.slot(score.InstrumentID)

	slot.mu.Lock()
	defer slot.mu.Unlock()

	now := m.now()
	if slot.lock != nil && slot.lock.ActiveAt(now) {
		return *slot.lock, fmt.Errorf("acquire %s: %w", score.InstrumentID, models.ErrLockConflict)
	}
	l := &models.SignalLock{
		ID:           uuid.NewString(),
		InstrumentID: score.InstrumentID,
		Direction:    score.Direction,
		Confidence:   score.Confidence,
		AcquiredAt:   now,
		ExpiresAt:    now.Add(m.Duration(score.Confidence)),
		State:        models.LockActive,
	}
	slot.lock = l
	return *l, nil
}

// Active returns the instrument's lock while it is ACTIVE.
func (m *SignalLockManager) Active(instrument string) (models.SignalLock, bool) {
	slot := m.existing(instrument)
	if slot == nil {
		return models.SignalLock{}, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.lock == nil {
		return models.SignalLock{}, false
	}
	if !slot.lock.ActiveAt(m.now()) {
		slot.lock.State = models.LockExpired
		return models.SignalLock{}, false
	}
	return *slot.lock, true
}

// Release expires lockID early. Unknown or already expired locks are ignored.
func (m *SignalLockManager) Release(instrument, lockID string) bool {
	slot := m.existing(instrument)
	if slot == nil {
		return false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.lock == nil || slot.lock.ID != lockID || slot.lock.State == models.LockExpired {
		return false
	}
	now := m.now()
	slot.lock.State = models.LockExpired
	if now.Before(slot.lock.ExpiresAt) {
		slot.lock.ExpiresAt = now
	}
	return true
}

// Remove drops the instrument's slot.
func (m *SignalLockManager) Remove(instrument string) {
	m.mu.Lock()
	delete(m.slots, instrument)
	m.mu.Unlock()
}

func (m *SignalLockManager) existing(instrument string) *lockSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[instrument]
}

func (m *SignalLockManager) slot(instrument string) *lockSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[instrument]
	if !ok {
		s = &lockSlot{}
		m.slots[instrument] = s
	}
	return s
}
