package usecase

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"SignalPulse/internal/domain/models"
)

// OutcomeTracker follows each emitted signal until its stop-loss or
// take-profit is touched or its lock expires, and produces exactly one
// OutcomeRecord per lock.
type OutcomeTracker struct {
	band float64 // percent move below which an expiry is inconclusive

	mu      sync.Mutex
	pending map[string]models.Signal // by lock id
}

func NewOutcomeTracker(inconclusiveBand float64) *OutcomeTracker {
	return &OutcomeTracker{band: inconclusiveBand, pending: make(map[string]models.Signal)}
}

// Track starts following sig. A lock id is only ever tracked once.
func (t *OutcomeTracker) Track(sig models.Signal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[sig.LockID]; !ok {
		t.pending[sig.LockID] = sig
	}
}

// Pending reports how many signals await an outcome.
func (t *OutcomeTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// PendingFor returns the signal still tracked for instrument, if any.
func (t *OutcomeTracker) PendingFor(instrument string) (models.Signal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sig := range t.pending {
		if sig.InstrumentID == instrument {
			return sig, true
		}
	}
	return models.Signal{}, false
}

// Observe checks s against every pending signal of its instrument, starting
// with the first sample after the one that priced the signal. Samples
// stamped at or after a lock's expiry resolve it as expired.
func (t *OutcomeTracker) Observe(s models.PriceSample) []models.OutcomeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []models.OutcomeRecord
	for id, sig := range t.pending {
		if sig.InstrumentID != s.InstrumentID || !followsEntry(sig, s) {
			continue
		}
		var rec models.OutcomeRecord
		var done bool
		if !s.Timestamp.Before(sig.ExpiresAt) {
			rec, done = t.expire(sig, s.Price, s.Timestamp), true
		} else {
			rec, done = crossed(sig, s)
		}
		if done {
			delete(t.pending, id)
			out = append(out, rec)
		}
	}
	return out
}

// Expire resolves every pending signal whose lock expired by now, using the
// latest known price of its instrument.
func (t *OutcomeTracker) Expire(now time.Time, latest func(instrument string) (models.PriceSample, error)) []models.OutcomeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []models.OutcomeRecord
	for id, sig := range t.pending {
		if now.Before(sig.ExpiresAt) {
			continue
		}
		exit := sig.Price
		if s, err := latest(sig.InstrumentID); err == nil {
			exit = s.Price
		}
		delete(t.pending, id)
		out = append(out, t.expire(sig, exit, now))
	}
	return out
}

// Forget drops pending signals of a removed instrument without an outcome.
func (t *OutcomeTracker) Forget(instrument string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, sig := range t.pending {
		if sig.InstrumentID == instrument {
			delete(t.pending, id)
		}
	}
}

// followsEntry compares source time with source time; EmittedAt is the
// engine clock and only serves signals without an entry sample time.
func followsEntry(sig models.Signal, s models.PriceSample) bool {
	if sig.PriceAt.IsZero() {
		return !s.Timestamp.Before(sig.EmittedAt)
	}
	return s.Timestamp.After(sig.PriceAt)
}

func crossed(sig models.Signal, s models.PriceSample) (models.OutcomeRecord, bool) {
	p := s.Price
	switch sig.Direction {
	case models.DirectionBullish:
		if p.GreaterThanOrEqual(sig.TakeProfit) {
			return record(sig, p, s.Timestamp, models.DirectionBullish, models.ResolvedTakeProfit), true
		}
		if p.LessThanOrEqual(sig.StopLoss) {
			return record(sig, p, s.Timestamp, models.DirectionBearish, models.ResolvedStopLoss), true
		}
	case models.DirectionBearish:
		if p.LessThanOrEqual(sig.TakeProfit) {
			return record(sig, p, s.Timestamp, models.DirectionBearish, models.ResolvedTakeProfit), true
		}
		if p.GreaterThanOrEqual(sig.StopLoss) {
			return record(sig, p, s.Timestamp, models.DirectionBullish, models.ResolvedStopLoss), true
		}
	}
	return models.OutcomeRecord{}, false
}

func (t *OutcomeTracker) expire(sig models.Signal, exit decimal.Decimal, at time.Time) models.OutcomeRecord {
	move := magnitude(sig.Price, exit)
	realized := models.DirectionNeutral
	switch {
	case math.Abs(move) < t.band:
	case move > 0:
		realized = models.DirectionBullish
	default:
		realized = models.DirectionBearish
	}
	return record(sig, exit, at, realized, models.ResolvedExpired)
}

func record(sig models.Signal, exit decimal.Decimal, at time.Time, realized models.Direction, res models.Resolution) models.OutcomeRecord {
	class := models.OutcomeInconclusive
	switch realized {
	case sig.Direction:
		class = models.OutcomeWin
	case sig.Direction.Opposite():
		class = models.OutcomeLoss
	}
	return models.OutcomeRecord{
		SignalID:          sig.ID,
		LockID:            sig.LockID,
		InstrumentID:      sig.InstrumentID,
		SignalDirection:   sig.Direction,
		RealizedDirection: realized,
		Classification:    class,
		Resolution:        res,
		EntryPrice:        sig.Price,
		ExitPrice:         exit,
		Magnitude:         magnitude(sig.Price, exit),
		Votes:             sig.Votes,
		EmittedAt:         sig.EmittedAt,
		ResolvedAt:        at,
	}
}

// magnitude is the signed percent move from entry to exit.
func magnitude(entry, exit decimal.Decimal) float64 {
	if entry.IsZero() {
		return 0
	}
	return exit.Sub(entry).Div(entry).Mul(hundred).InexactFloat64()
}
