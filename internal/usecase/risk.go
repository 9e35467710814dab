package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"

	"SignalPulse/internal/domain/models"
)

// RiskBand holds stop-loss and take-profit offsets in percent of entry.
type RiskBand struct {
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
}

// RiskCalculator derives protective levels from a signal's entry price.
type RiskCalculator struct {
	bands map[models.Category]RiskBand
}

var hundred = decimal.NewFromInt(100)

func NewRiskCalculator(bands map[models.Category]RiskBand) *RiskCalculator {
	return &RiskCalculator{bands: bands}
}

// DeriveRiskParams places the stop below and the target above the entry for
// a bullish signal, inverted for a bearish one.
func (r *RiskCalculator) DeriveRiskParams(sig models.Signal) (models.RiskParams, error) {
	band, ok := r.bands[sig.Category]
	if !ok {
		return models.RiskParams{}, fmt.Errorf("no risk band for category %q", sig.Category)
	}
	if !sig.Price.IsPositive() {
		return models.RiskParams{}, fmt.Errorf("entry price must be positive, got %s", sig.Price)
	}

	slOff := sig.Price.Mul(band.StopLossPct).Div(hundred)
	tpOff := sig.Price.Mul(band.TakeProfitPct).Div(hundred)

	var p models.RiskParams
	switch sig.Direction {
	case models.DirectionBullish:
		p.StopLoss = sig.Price.Sub(slOff)
		p.TakeProfit = sig.Price.Add(tpOff)
	case models.DirectionBearish:
		p.StopLoss = sig.Price.Add(slOff)
		p.TakeProfit = sig.Price.Sub(tpOff)
	default:
		return models.RiskParams{}, fmt.Errorf("no risk levels for %s signal", sig.Direction)
	}
	p.StopLoss = p.StopLoss.Round(8)
	p.TakeProfit = p.TakeProfit.Round(8)
	if !band.StopLossPct.IsZero() {
		p.RiskReward = band.TakeProfitPct.Div(band.StopLossPct).InexactFloat64()
	}
	return p, nil
}
