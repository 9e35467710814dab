package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Comparison string

const (
	CompareAbove Comparison = "above"
	CompareBelow Comparison = "below"
)

// AlertSubscription is supplied by the alert UI layer.
type AlertSubscription struct {
	ID           string          `json:"id"`
	InstrumentID string          `json:"instrument_id"`
	Threshold    decimal.Decimal `json:"threshold"`
	Comparison   Comparison      `json:"type"`
	Owner        string          `json:"owner"`
	Enabled      bool            `json:"enabled"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Satisfied reports whether price is on the alerting side of the threshold.
func (a AlertSubscription) Satisfied(price decimal.Decimal) bool {
	if a.Comparison == CompareBelow {
		return price.LessThanOrEqual(a.Threshold)
	}
	return price.GreaterThanOrEqual(a.Threshold)
}

type AlertTrigger struct {
	SubscriptionID string          `json:"subscription_id"`
	InstrumentID   string          `json:"instrument_id"`
	Price          decimal.Decimal `json:"price"`
	Threshold      decimal.Decimal `json:"threshold"`
	Comparison     Comparison      `json:"type"`
	Owner          string          `json:"owner"`
	TriggeredAt    time.Time       `json:"triggered_at"`
}
