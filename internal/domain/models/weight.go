package models

import "time"

type IndicatorWeight struct {
	Name    IndicatorName `json:"name"`
	Weight  float64       `json:"weight"`
	Updates int64         `json:"updates"`
}

type PerformanceStats struct {
	Total        int64   `json:"total"`
	Wins         int64   `json:"wins"`
	Losses       int64   `json:"losses"`
	Inconclusive int64   `json:"inconclusive"`
	Accuracy     float64 `json:"accuracy"`
}

// Add counts one classified outcome and refreshes the accuracy rate.
func (p *PerformanceStats) Add(c Classification) {
	p.Total++
	switch c {
	case OutcomeWin:
		p.Wins++
	case OutcomeLoss:
		p.Losses++
	default:
		p.Inconclusive++
	}
	if decided := p.Wins + p.Losses; decided > 0 {
		p.Accuracy = float64(p.Wins) / float64(decided) * 100
	}
}

// WeightState is the persisted form of the learner.
type WeightState struct {
	Weights             []IndicatorWeight           `json:"weights"`
	ConfidenceThreshold float64                     `json:"confidence_threshold"`
	Performance         PerformanceStats            `json:"performance"`
	PerInstrument       map[string]PerformanceStats `json:"per_instrument"`
	UpdatedAt           time.Time                   `json:"updated_at"`
}
