package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Classification string

const (
	OutcomeWin          Classification = "win"
	OutcomeLoss         Classification = "loss"
	OutcomeInconclusive Classification = "inconclusive"
)

// Resolution tells how a lock lifecycle ended.
type Resolution string

const (
	ResolvedTakeProfit Resolution = "take_profit"
	ResolvedStopLoss   Resolution = "stop_loss"
	ResolvedExpired    Resolution = "expired"
)

// OutcomeRecord is produced once per SignalLock and consumed once by the weight learner.
type OutcomeRecord struct {
	SignalID          string          `json:"signal_id"`
	LockID            string          `json:"lock_id"`
	InstrumentID      string          `json:"instrument_id"`
	SignalDirection   Direction       `json:"signal_direction"`
	RealizedDirection Direction       `json:"realized_direction"`
	Classification    Classification  `json:"classification"`
	Resolution        Resolution      `json:"resolution"`
	EntryPrice        decimal.Decimal `json:"entry_price"`
	ExitPrice         decimal.Decimal `json:"exit_price"`
	Magnitude         float64         `json:"magnitude"`
	Votes             []DirectionVote `json:"votes"`
	EmittedAt         time.Time       `json:"emitted_at"`
	ResolvedAt        time.Time       `json:"resolved_at"`
}
