package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a raw price returned by a source adapter.
type Quote struct {
	InstrumentID string          `json:"instrument_id"`
	Source       string          `json:"source"`
	Price        decimal.Decimal `json:"price"`
	Timestamp    time.Time       `json:"timestamp"`
}

// PriceSample is one accepted point of an instrument's sliding window.
type PriceSample struct {
	InstrumentID string          `json:"instrument_id"`
	Price        decimal.Decimal `json:"price"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Sample converts a quote into a window sample.
func (q Quote) Sample() PriceSample {
	return PriceSample{InstrumentID: q.InstrumentID, Price: q.Price, Timestamp: q.Timestamp}
}
