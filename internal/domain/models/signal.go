package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LockState string

const (
	LockActive  LockState = "ACTIVE"
	LockExpired LockState = "EXPIRED"
)

// SignalLock is the time-bounded hold that authorizes a single Signal.
type SignalLock struct {
	ID           string    `json:"id"`
	InstrumentID string    `json:"instrument_id"`
	Direction    Direction `json:"direction"`
	Confidence   float64   `json:"confidence"`
	AcquiredAt   time.Time `json:"acquired_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	State        LockState `json:"state"`
}

// ActiveAt reports whether the lock still holds at now.
func (l SignalLock) ActiveAt(now time.Time) bool {
	return l.State == LockActive && now.Before(l.ExpiresAt)
}

// Signal is emitted exactly once per SignalLock and never mutated.
type Signal struct {
	ID             string          `json:"id"`
	LockID         string          `json:"lock_id"`
	InstrumentID   string          `json:"instrument_id"`
	InstrumentName string          `json:"instrument_name"`
	Category       Category        `json:"category"`
	Direction      Direction       `json:"direction"`
	Price          decimal.Decimal `json:"price"`
	PriceAt        time.Time       `json:"price_at"` // source time of the entry price sample
	Confidence     float64         `json:"confidence"`
	Stability      float64         `json:"stability"`
	StopLoss       decimal.Decimal `json:"stop_loss"`
	TakeProfit     decimal.Decimal `json:"take_profit"`
	RiskReward     float64         `json:"risk_reward"`
	EmittedAt      time.Time       `json:"emitted_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	Reason         string          `json:"reason"`
	Votes          []DirectionVote `json:"votes"`
}

// RiskParams are the protective levels derived for a signal.
type RiskParams struct {
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	RiskReward float64         `json:"risk_reward"`
}
