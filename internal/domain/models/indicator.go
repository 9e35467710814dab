package models

import "time"

// IndicatorName identifies a technical indicator.
type IndicatorName string

const (
	IndicatorRSI        IndicatorName = "rsi"
	IndicatorMACD       IndicatorName = "macd"
	IndicatorBollinger  IndicatorName = "bollinger"
	IndicatorStochastic IndicatorName = "stochastic"
	IndicatorWilliamsR  IndicatorName = "williams_r"
)

// AllIndicators returns every indicator in a stable order.
func AllIndicators() []IndicatorName {
	return []IndicatorName{IndicatorRSI, IndicatorMACD, IndicatorBollinger, IndicatorStochastic, IndicatorWilliamsR}
}

type MACDValue struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type BollingerValue struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// PercentB locates price inside the bands: 0 at the lower band, 1 at the upper band.
func (b BollingerValue) PercentB(price float64) float64 {
	width := b.Upper - b.Lower
	if width == 0 {
		return 0.5
	}
	return (price - b.Lower) / width
}

type StochasticValue struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// IndicatorSnapshot holds the indicators computed from one window.
// A nil field means the window is still too short for that indicator.
type IndicatorSnapshot struct {
	InstrumentID string           `json:"instrument_id"`
	Timestamp    time.Time        `json:"timestamp"`
	Price        float64          `json:"price"`
	Samples      int              `json:"samples"`
	RSI          *float64         `json:"rsi,omitempty"`
	MACD         *MACDValue       `json:"macd,omitempty"`
	Bollinger    *BollingerValue  `json:"bollinger,omitempty"`
	Stochastic   *StochasticValue `json:"stochastic,omitempty"`
	WilliamsR    *float64         `json:"williams_r,omitempty"`
}

// Available lists the indicators present in the snapshot.
func (s IndicatorSnapshot) Available() []IndicatorName {
	out := make([]IndicatorName, 0, 5)
	if s.RSI != nil {
		out = append(out, IndicatorRSI)
	}
	if s.MACD != nil {
		out = append(out, IndicatorMACD)
	}
	if s.Bollinger != nil {
		out = append(out, IndicatorBollinger)
	}
	if s.Stochastic != nil {
		out = append(out, IndicatorStochastic)
	}
	if s.WilliamsR != nil {
		out = append(out, IndicatorWilliamsR)
	}
	return out
}
