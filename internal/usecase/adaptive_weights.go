package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"SignalPulse/internal/domain/models"
	drepo "SignalPulse/internal/domain/repository"
	"SignalPulse/pkg/logger"
)

type LearningParams struct {
	LearningRate  float64
	Floor         float64
	ThresholdStep float64
	ThresholdMin  float64
	ThresholdMax  float64
}

// DefaultIndicatorWeights is the starting distribution.
func DefaultIndicatorWeights() map[models.IndicatorName]float64 {
	return map[models.IndicatorName]float64{
		models.IndicatorRSI:        0.25,
		models.IndicatorMACD:       0.25,
		models.IndicatorBollinger:  0.2,
		models.IndicatorStochastic: 0.15,
		models.IndicatorWilliamsR:  0.15,
	}
}

const appliedMemory = 4096

// AdaptiveWeights is the only writer of indicator weights. It nudges weights
// toward indicators whose votes matched realized outcomes, keeps every
// weight above a floor, and renormalizes so they sum to 1.
type AdaptiveWeights struct {
	params  LearningParams
	store   drepo.WeightStore
	metrics drepo.Metrics
	log     *logger.Logger
	now     func() time.Time

	mu            sync.RWMutex
	weights       map[models.IndicatorName]*models.IndicatorWeight
	threshold     float64
	perf          models.PerformanceStats
	perInstrument map[string]models.PerformanceStats
	applied       map[string]struct{}
	appliedOrder  []string
	dirty         bool
}

type WeightsOption func(*AdaptiveWeights)

func WithWeightStore(s drepo.WeightStore) WeightsOption {
	return func(w *AdaptiveWeights) { w.store = s }
}

func WithWeightsClock(now func() time.Time) WeightsOption {
	return func(w *AdaptiveWeights) { w.now = now }
}

func NewAdaptiveWeights(params LearningParams, initial map[models.IndicatorName]float64, threshold float64,
	metrics drepo.Metrics, log *logger.Logger, opts ...WeightsOption) *AdaptiveWeights {
	w := &AdaptiveWeights{
		params:        params,
		metrics:       metrics,
		log:           log,
		now:           time.Now,
		weights:       make(map[models.IndicatorName]*models.IndicatorWeight),
		perInstrument: make(map[string]models.PerformanceStats),
		applied:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if len(initial) == 0 {
		initial = DefaultIndicatorWeights()
	}
	raw := make(map[models.IndicatorName]float64, len(initial))
	for _, name := range models.AllIndicators() {
		raw[name] = initial[name]
	}
	normalize(raw, params.Floor)
	for name, v := range raw {
		w.weights[name] = &models.IndicatorWeight{Name: name, Weight: v}
	}
	w.threshold = w.clampThreshold(threshold)
	w.publishGauges()
	return w
}

// Weights returns a copy of the current weights.
func (w *AdaptiveWeights) Weights() map[models.IndicatorName]float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[models.IndicatorName]float64, len(w.weights))
	for k, v := range w.weights {
		out[k] = v.Weight
	}
	return out
}

// Threshold is the confidence a consensus needs to lock.
func (w *AdaptiveWeights) Threshold() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.threshold
}

// Update applies rec once. Replays of the same lock return false.
func (w *AdaptiveWeights) Update(rec models.OutcomeRecord) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, seen := w.applied[rec.LockID]; seen {
		return false
	}
	w.remember(rec.LockID)

	w.perf.Add(rec.Classification)
	st := w.perInstrument[rec.InstrumentID]
	st.Add(rec.Classification)
	w.perInstrument[rec.InstrumentID] = st
	w.dirty = true

	switch rec.Classification {
	case models.OutcomeWin:
		w.threshold = w.clampThreshold(w.threshold - w.params.ThresholdStep)
	case models.OutcomeLoss:
		w.threshold = w.clampThreshold(w.threshold + w.params.ThresholdStep)
	default:
		return true
	}

	realized := rec.RealizedDirection
	raw := make(map[models.IndicatorName]float64, len(w.weights))
	for name, iw := range w.weights {
		raw[name] = iw.Weight
	}
	for _, v := range rec.Votes {
		cur, ok := raw[v.Indicator]
		if !ok || v.Direction == models.DirectionNeutral || realized == models.DirectionNeutral {
			continue
		}
		step := w.params.LearningRate * v.Strength
		if v.Direction == realized {
			raw[v.Indicator] = cur + step
		} else {
			raw[v.Indicator] = cur - step
		}
		w.weights[v.Indicator].Updates++
	}
	normalize(raw, w.params.Floor)
	for name, v := range raw {
		w.weights[name].Weight = v
	}
	w.publishGaugesLocked()

	w.log.Debug("indicator weights updated",
		logger.String("instrument", rec.InstrumentID),
		logger.String("classification", string(rec.Classification)),
		logger.Float64("threshold", w.threshold))
	return true
}

func (w *AdaptiveWeights) remember(lockID string) {
	w.applied[lockID] = struct{}{}
	w.appliedOrder = append(w.appliedOrder, lockID)
	if len(w.appliedOrder) > appliedMemory {
		delete(w.applied, w.appliedOrder[0])
		w.appliedOrder = w.appliedOrder[1:]
	}
}

func (w *AdaptiveWeights) clampThreshold(t float64) float64 {
	if w.params.ThresholdMax > 0 {
		t = math.Min(t, w.params.ThresholdMax)
	}
	return math.Max(t, w.params.ThresholdMin)
}

// Snapshot returns the persistable learner state.
func (w *AdaptiveWeights) Snapshot() models.WeightState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshotLocked()
}

func (w *AdaptiveWeights) snapshotLocked() models.WeightState {
	st := models.WeightState{
		Weights:             make([]models.IndicatorWeight, 0, len(w.weights)),
		ConfidenceThreshold: w.threshold,
		Performance:         w.perf,
		PerInstrument:       make(map[string]models.PerformanceStats, len(w.perInstrument)),
		UpdatedAt:           w.now(),
	}
	for _, iw := range w.weights {
		st.Weights = append(st.Weights, *iw)
	}
	sort.Slice(st.Weights, func(i, j int) bool { return st.Weights[i].Name < st.Weights[j].Name })
	for k, v := range w.perInstrument {
		st.PerInstrument[k] = v
	}
	return st
}

// Restore replaces the learner state with st. Unknown indicators are ignored.
func (w *AdaptiveWeights) Restore(st models.WeightState) {
	w.mu.Lock()
	defer w.mu.Unlock()

	raw := make(map[models.IndicatorName]float64, len(w.weights))
	for name := range w.weights {
		raw[name] = w.weights[name].Weight
	}
	updates := make(map[models.IndicatorName]int64)
	for _, iw := range st.Weights {
		if _, ok := raw[iw.Name]; ok {
			raw[iw.Name] = iw.Weight
			updates[iw.Name] = iw.Updates
		}
	}
	normalize(raw, w.params.Floor)
	for name, v := range raw {
		w.weights[name].Weight = v
		w.weights[name].Updates = updates[name]
	}
	if st.ConfidenceThreshold > 0 {
		w.threshold = w.clampThreshold(st.ConfidenceThreshold)
	}
	w.perf = st.Performance
	w.perInstrument = make(map[string]models.PerformanceStats, len(st.PerInstrument))
	for k, v := range st.PerInstrument {
		w.perInstrument[k] = v
	}
	w.publishGaugesLocked()
}

// Load restores state from the configured store, if any.
func (w *AdaptiveWeights) Load(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	st, err := w.store.Load(ctx)
	if errors.Is(err, models.ErrNoData) {
		w.log.Info("no saved indicator weights, using defaults")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load weights: %w", err)
	}
	w.Restore(st)
	w.log.Info("indicator weights restored",
		logger.Int64("outcomes", st.Performance.Total),
		logger.Float64("threshold", st.ConfidenceThreshold))
	return nil
}

// Checkpoint saves the state when it changed since the last save.
func (w *AdaptiveWeights) Checkpoint(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return nil
	}
	st := w.snapshotLocked()
	w.dirty = false
	w.mu.Unlock()

	if err := w.store.Save(ctx, st); err != nil {
		w.mu.Lock()
		w.dirty = true
		w.mu.Unlock()
		w.metrics.RecordError("weights_save")
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

func (w *AdaptiveWeights) publishGauges() {
	w.mu.RLock()
	defer w.mu.RUnlock()
	w.publishGaugesLocked()
}

func (w *AdaptiveWeights) publishGaugesLocked() {
	for name, iw := range w.weights {
		w.metrics.SetWeight(string(name), iw.Weight)
	}
}

// normalize clamps every weight to at least floor and rescales the rest so
// the total is 1. Weights pushed below the floor by rescaling are pinned
// there and the remainder is redistributed.
func normalize(w map[models.IndicatorName]float64, floor float64) {
	n := len(w)
	if n == 0 {
		return
	}
	if floor*float64(n) >= 1 {
		for k := range w {
			w[k] = 1 / float64(n)
		}
		return
	}
	pinned := make(map[models.IndicatorName]bool, n)
	for k, v := range w {
		if math.IsNaN(v) || v <= floor {
			w[k] = floor
			pinned[k] = true
		}
	}
	for iter := 0; iter <= n; iter++ {
		free := 0.0
		for k, v := range w {
			if !pinned[k] {
				free += v
			}
		}
		if len(pinned) == n || free <= 0 {
			for k := range w {
				w[k] = 1 / float64(n)
			}
			return
		}
		remaining := 1 - floor*float64(len(pinned))
		changed := false
		for k, v := range w {
			if pinned[k] {
				continue
			}
			nv := v / free * remaining
			if nv < floor {
				nv = floor
				pinned[k] = true
				changed = true
			}
			w[k] = nv
		}
		if !changed {
			return
		}
	}
}
