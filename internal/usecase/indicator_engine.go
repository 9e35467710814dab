package usecase

import (
	"SignalPulse/internal/domain/models"
	"SignalPulse/internal/services/indicators"
)

// IndicatorEngine turns a cached window into an IndicatorSnapshot.
// Evaluate has no state of its own; the same window yields the same snapshot.
type IndicatorEngine struct {
	cache  *PriceCache
	params indicators.Params
}

func NewIndicatorEngine(cache *PriceCache, params indicators.Params) *IndicatorEngine {
	return &IndicatorEngine{cache: cache, params: params}
}

// MinSamples is the window length below which Evaluate fails.
func (e *IndicatorEngine) MinSamples() int { return e.params.MinSamples() }

// Evaluate returns InsufficientDataError while the window is shorter than
// the smallest indicator requirement. Indicators with longer requirements
// stay nil until enough samples arrive.
func (e *IndicatorEngine) Evaluate(instrument string) (models.IndicatorSnapshot, error) {
	window := e.cache.Window(instrument, e.cache.Size())
	need := e.params.MinSamples()
	if len(window) < need {
		return models.IndicatorSnapshot{}, &models.InsufficientDataError{Instrument: instrument, Need: need, Have: len(window)}
	}

	closes := make([]float64, len(window))
	for i, s := range window {
		closes[i] = s.Price.InexactFloat64()
	}
	v := indicators.Compute(closes, e.params)
	last := window[len(window)-1]

	return models.IndicatorSnapshot{
		InstrumentID: instrument,
		Timestamp:    last.Timestamp,
		Price:        closes[len(closes)-1],
		Samples:      len(window),
		RSI:          v.RSI,
		MACD:         v.MACD,
		Bollinger:    v.Bollinger,
		Stochastic:   v.Stochastic,
		WilliamsR:    v.WilliamsR,
	}, nil
}
