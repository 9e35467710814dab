package models

import "time"

type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// Opposite returns the reverse direction; neutral stays neutral.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBullish:
		return DirectionBearish
	case DirectionBearish:
		return DirectionBullish
	default:
		return DirectionNeutral
	}
}

// Trend is the presentation form of a consensus direction.
type Trend string

const (
	TrendUp       Trend = "uptrend"
	TrendDown     Trend = "downtrend"
	TrendSideways Trend = "sideways"
)

func TrendOf(d Direction) Trend {
	switch d {
	case DirectionBullish:
		return TrendUp
	case DirectionBearish:
		return TrendDown
	default:
		return TrendSideways
	}
}

// DirectionVote is one indicator's opinion for one evaluation.
type DirectionVote struct {
	Indicator IndicatorName `json:"indicator"`
	Direction Direction     `json:"direction"`
	Strength  float64       `json:"strength"`
	Value     float64       `json:"value"`
}

// ConsensusScore is immutable once created.
type ConsensusScore struct {
	InstrumentID string          `json:"instrument_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Direction    Direction       `json:"direction"`
	Confidence   float64         `json:"confidence"`
	Stability    float64         `json:"stability"`
	Votes        []DirectionVote `json:"votes"`
}
