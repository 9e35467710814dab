package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventPriceUpdate    EventKind = "price_update"
	EventTradingSignal  EventKind = "trading_signal"
	EventAlertTriggered EventKind = "alert_triggered"
	EventSystemStatus   EventKind = "system_status"
	EventSignalOutcome  EventKind = "signal_outcome"
)

// Event is the typed envelope fanned out to subscribers.
// Owner restricts delivery to one subscriber session when set.
type Event struct {
	Kind         EventKind   `json:"kind"`
	Timestamp    time.Time   `json:"timestamp"`
	InstrumentID string      `json:"instrument_id,omitempty"`
	Owner        string      `json:"-"`
	Payload      interface{} `json:"payload"`
}

type PriceUpdate struct {
	InstrumentID string          `json:"instrument_id"`
	Price        decimal.Decimal `json:"price"`
	Timestamp    time.Time       `json:"timestamp"`
	Trend        Trend           `json:"trend,omitempty"`
}
