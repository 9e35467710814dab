package repository

import (
	"context"
	"sync"
	"time"

	"SignalPulse/internal/domain/models"
	"SignalPulse/internal/domain/repository"
)

// MemoryJournal keeps the last capacity signals and outcomes in process.
type MemoryJournal struct {
	capacity int

	mu       sync.RWMutex
	signals  []models.Signal
	outcomes []models.OutcomeRecord
}

func NewMemoryJournal(capacity int) *MemoryJournal {
	if capacity < 1 {
		capacity = 1
	}
	return &MemoryJournal{capacity: capacity}
}

func (j *MemoryJournal) Init(context.Context) error { return nil }

func (j *MemoryJournal) StoreSignal(_ context.Context, s models.Signal) error {
	j.mu.Lock()
	j.signals = appendBounded(j.signals, s, j.capacity)
	j.mu.Unlock()
	return nil
}

func (j *MemoryJournal) StoreOutcome(_ context.Context, r models.OutcomeRecord) error {
	j.mu.Lock()
	j.outcomes = appendBounded(j.outcomes, r, j.capacity)
	j.mu.Unlock()
	return nil
}

func (j *MemoryJournal) RecentOutcomes(_ context.Context, instrument string, since time.Time, limit int) ([]models.OutcomeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]models.OutcomeRecord, 0, limit)
	for i := len(j.outcomes) - 1; i >= 0 && len(out) < limit; i-- {
		r := j.outcomes[i]
		if instrument != "" && r.InstrumentID != instrument {
			continue
		}
		if r.ResolvedAt.Before(since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Signals returns the retained signals, oldest first.
func (j *MemoryJournal) Signals() []models.Signal {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]models.Signal(nil), j.signals...)
}

func (j *MemoryJournal) Health(context.Context) error { return nil }

func (j *MemoryJournal) Close() error { return nil }

func appendBounded[T any](xs []T, v T, capacity int) []T {
	xs = append(xs, v)
	if over := len(xs) - capacity; over > 0 {
		xs = append(xs[:0], xs[over:]...)
	}
	return xs
}

var _ repository.Journal = (*MemoryJournal)(nil)
