package usecase

import (
	"math"
	"sync"

	"SignalPulse/internal/domain/models"
)

// WeightSource supplies the current indicator weights. Implementations return a copy.
type WeightSource interface {
	Weights() map[models.IndicatorName]float64
}

// VoteBands are the threshold bands mapping indicator values to votes.
type VoteBands struct {
	RSIOversold   float64
	RSIOverbought float64
}

func DefaultVoteBands() VoteBands {
	return VoteBands{RSIOversold: 30, RSIOverbought: 70}
}

// ConsensusScorer aggregates indicator votes into a weighted direction and
// tracks how stable that direction has been over the last cycles.
type ConsensusScorer struct {
	weights WeightSource
	bands   VoteBands
	cycles  int

	mu      sync.Mutex
	history map[string]*directionHistory
}

type directionHistory struct {
	mu   sync.Mutex
	dirs []models.Direction // newest last, at most cycles long
}

func NewConsensusScorer(weights WeightSource, bands VoteBands, cycles int) *ConsensusScorer {
	if cycles <= 0 {
		cycles = 5
	}
	return &ConsensusScorer{
		weights: weights,
		bands:   bands,
		cycles:  cycles,
		history: make(map[string]*directionHistory),
	}
}

// Votes maps every available indicator of snap to a DirectionVote.
func (s *ConsensusScorer) Votes(snap models.IndicatorSnapshot) []models.DirectionVote {
	votes := make([]models.DirectionVote, 0, 5)
	if snap.RSI != nil {
		votes = append(votes, s.rsiVote(*snap.RSI))
	}
	if snap.MACD != nil {
		votes = append(votes, macdVote(*snap.MACD))
	}
	if snap.Bollinger != nil {
		votes = append(votes, bollingerVote(*snap.Bollinger, snap.Price))
	}
	if snap.Stochastic != nil {
		votes = append(votes, stochasticVote(*snap.Stochastic))
	}
	if snap.WilliamsR != nil {
		votes = append(votes, williamsVote(*snap.WilliamsR))
	}
	return votes
}

func (s *ConsensusScorer) rsiVote(rsi float64) models.DirectionVote {
	v := models.DirectionVote{Indicator: models.IndicatorRSI, Direction: models.DirectionNeutral, Value: rsi}
	lo, hi := s.bands.RSIOversold, s.bands.RSIOverbought
	mid := (lo + hi) / 2
	switch {
	case rsi < lo:
		v.Direction, v.Strength = models.DirectionBullish, 0.5+0.5*(lo-rsi)/lo
	case rsi > hi:
		v.Direction, v.Strength = models.DirectionBearish, 0.5+0.5*(rsi-hi)/(100-hi)
	case rsi > mid+5:
		v.Direction, v.Strength = models.DirectionBullish, 0.4
	case rsi < mid-5:
		v.Direction, v.Strength = models.DirectionBearish, 0.4
	}
	v.Strength = clamp(v.Strength, 0, 1)
	return v
}

func macdVote(m models.MACDValue) models.DirectionVote {
	v := models.DirectionVote{Indicator: models.IndicatorMACD, Direction: models.DirectionNeutral, Value: m.Histogram}
	switch {
	case m.Histogram > 0:
		v.Direction = models.DirectionBullish
	case m.Histogram < 0:
		v.Direction = models.DirectionBearish
	default:
		return v
	}
	v.Strength = 0.6
	if (m.Histogram > 0 && m.Line > 0) || (m.Histogram < 0 && m.Line < 0) {
		v.Strength = 0.8
	}
	return v
}

func bollingerVote(b models.BollingerValue, price float64) models.DirectionVote {
	pb := b.PercentB(price)
	v := models.DirectionVote{Indicator: models.IndicatorBollinger, Direction: models.DirectionNeutral, Value: pb}
	switch {
	case price >= b.Upper && b.Upper > b.Lower:
		v.Direction, v.Strength = models.DirectionBearish, 1
	case price <= b.Lower && b.Upper > b.Lower:
		v.Direction, v.Strength = models.DirectionBullish, 1
	case pb > 0.8:
		v.Direction, v.Strength = models.DirectionBearish, 0.5
	case pb < 0.2:
		v.Direction, v.Strength = models.DirectionBullish, 0.5
	}
	return v
}

func stochasticVote(st models.StochasticValue) models.DirectionVote {
	v := models.DirectionVote{Indicator: models.IndicatorStochastic, Direction: models.DirectionNeutral, Value: st.K}
	switch {
	case st.K > 80:
		v.Direction, v.Strength = models.DirectionBearish, 0.5+0.5*(st.K-80)/20
	case st.K < 20:
		v.Direction, v.Strength = models.DirectionBullish, 0.5+0.5*(20-st.K)/20
	}
	v.Strength = clamp(v.Strength, 0, 1)
	return v
}

func williamsVote(w float64) models.DirectionVote {
	v := models.DirectionVote{Indicator: models.IndicatorWilliamsR, Direction: models.DirectionNeutral, Value: w}
	switch {
	case w > -20:
		v.Direction, v.Strength = models.DirectionBearish, 0.5+0.5*(w+20)/20
	case w < -80:
		v.Direction, v.Strength = models.DirectionBullish, 0.5+0.5*(-80-w)/20
	}
	v.Strength = clamp(v.Strength, 0, 1)
	return v
}

// Score aggregates the votes of snap and records the resulting direction
// for stability tracking. Evaluations of one instrument must not overlap.
func (s *ConsensusScorer) Score(snap models.IndicatorSnapshot) models.ConsensusScore {
	votes := s.Votes(snap)
	dir, confidence := aggregate(votes, s.weights.Weights())

	h := s.historyFor(snap.InstrumentID)
	h.mu.Lock()
	h.dirs = append(h.dirs, dir)
	if len(h.dirs) > s.cycles {
		h.dirs = h.dirs[len(h.dirs)-s.cycles:]
	}
	agree := 0
	for _, d := range h.dirs {
		if d == dir {
			agree++
		}
	}
	h.mu.Unlock()

	return models.ConsensusScore{
		InstrumentID: snap.InstrumentID,
		Timestamp:    snap.Timestamp,
		Direction:    dir,
		Confidence:   confidence,
		Stability:    clamp(float64(agree)/float64(s.cycles)*100, 0, 100),
		Votes:        votes,
	}
}

// aggregate weighs votes and returns the winning direction and its
// confidence in [0,100]. Equal bullish and bearish weight is neutral.
func aggregate(votes []models.DirectionVote, weights map[models.IndicatorName]float64) (models.Direction, float64) {
	var bull, bear, total float64
	for _, v := range votes {
		w := weights[v.Indicator]
		total += w
		switch v.Direction {
		case models.DirectionBullish:
			bull += w * v.Strength
		case models.DirectionBearish:
			bear += w * v.Strength
		}
	}
	if total <= 0 || math.Abs(bull-bear) < 1e-12 {
		return models.DirectionNeutral, 0
	}
	dir := models.DirectionBullish
	if bear > bull {
		dir = models.DirectionBearish
	}
	return dir, clamp(math.Abs(bull-bear)/total*100, 0, 100)
}

// Trend returns the latest recorded direction as a trend.
func (s *ConsensusScorer) Trend(instrument string) (models.Trend, bool) {
	s.mu.Lock()
	h, ok := s.history[instrument]
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.dirs) == 0 {
		return "", false
	}
	return models.TrendOf(h.dirs[len(h.dirs)-1]), true
}

// Forget drops the stability history of a removed instrument.
func (s *ConsensusScorer) Forget(instrument string) {
	s.mu.Lock()
	delete(s.history, instrument)
	s.mu.Unlock()
}

func (s *ConsensusScorer) historyFor(instrument string) *directionHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[instrument]
	if !ok {
		h = &directionHistory{dirs: make([]models.Direction, 0, s.cycles)}
		s.history[instrument] = h
	}
	return h
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
