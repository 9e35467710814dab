package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"SignalPulse/internal/domain/models"
	drepo "SignalPulse/internal/domain/repository"
	"SignalPulse/pkg/logger"
)

// QuoteIngest validates a raw quote and records it into the price cache.
type QuoteIngest interface {
	Process(ctx context.Context, inst models.Instrument, q models.Quote) (models.PriceSample, error)
	Forget(instrument string)
}

// EngineDeps are the collaborators of a SignalEngine.
type EngineDeps struct {
	Cache      *PriceCache
	Pipeline   QuoteIngest
	Indicators *IndicatorEngine
	Scorer     *ConsensusScorer
	Locks      *SignalLockManager
	Risk       *RiskCalculator
	Outcomes   *OutcomeTracker
	Weights    *AdaptiveWeights
	Alerts     *AlertMonitor
	Monitor    *SourceMonitor
	Bus        drepo.EventBus
	Metrics    drepo.Metrics
	Log        *logger.Logger
}

// SignalEngine runs the per-instrument pipeline: quotes into the cache,
// cache updates into alerts and outcomes, evaluations into locks and signals.
type SignalEngine struct {
	EngineDeps
	parallelism int
	now         func() time.Time

	mu     sync.RWMutex
	states map[string]*instrumentState
}

type instrumentState struct {
	inst      models.Instrument
	evalMu    sync.Mutex // evaluations of one instrument never overlap
	ctx       context.Context
	cancel    context.CancelFunc
	analyzing atomic.Bool
}

type EngineOption func(*SignalEngine)

func WithEvalParallelism(n int) EngineOption {
	return func(e *SignalEngine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *SignalEngine) { e.now = now }
}

func NewSignalEngine(instruments []models.Instrument, deps EngineDeps, opts ...EngineOption) *SignalEngine {
	e := &SignalEngine{
		EngineDeps:  deps,
		parallelism: 4,
		now:         time.Now,
		states:      make(map[string]*instrumentState, len(instruments)),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, in := range instruments {
		ctx, cancel := context.WithCancel(context.Background())
		st := &instrumentState{inst: in, ctx: ctx, cancel: cancel}
		st.analyzing.Store(true)
		e.states[in.ID] = st
	}
	e.Cache.AddListener(e.onSample)
	return e
}

func (e *SignalEngine) state(id string) (*instrumentState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.states[id]
	return st, ok
}

// Known reports whether id is a configured, not removed instrument.
func (e *SignalEngine) Known(id string) bool {
	_, ok := e.state(id)
	return ok
}

func (e *SignalEngine) Instrument(id string) (models.Instrument, bool) {
	st, ok := e.state(id)
	if !ok {
		return models.Instrument{}, false
	}
	return st.inst, true
}

// Instruments returns the active instruments ordered by id.
func (e *SignalEngine) Instruments() []models.Instrument {
	e.mu.RLock()
	out := make([]models.Instrument, 0, len(e.states))
	for _, st := range e.states {
		out = append(out, st.inst)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Analyzing lists instruments whose window is still warming up.
func (e *SignalEngine) Analyzing() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []string
	for id, st := range e.states {
		if st.analyzing.Load() {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// OnQuote feeds a source quote through the pipeline into the cache.
func (e *SignalEngine) OnQuote(ctx context.Context, q models.Quote) error {
	st, ok := e.state(q.InstrumentID)
	if !ok {
		return fmt.Errorf("quote %s: %w", q.InstrumentID, models.ErrUnknownInstrument)
	}
	if st.ctx.Err() != nil {
		return fmt.Errorf("quote %s: %w", q.InstrumentID, models.ErrInstrumentRemoved)
	}
	if _, err := e.Pipeline.Process(ctx, st.inst, q); err != nil {
		var stale *models.StaleTimestampError
		if errors.As(err, &stale) {
			e.Log.Debug("stale quote rejected",
				logger.String("instrument", q.InstrumentID),
				logger.String("source", q.Source),
				logger.Time("timestamp", q.Timestamp))
		}
		return err
	}
	return nil
}

// onSample runs for every accepted sample, in order per instrument.
func (e *SignalEngine) onSample(s models.PriceSample) {
	e.Metrics.RecordPrice(s.InstrumentID, s.Price.InexactFloat64())

	update := models.PriceUpdate{InstrumentID: s.InstrumentID, Price: s.Price, Timestamp: s.Timestamp}
	if trend, ok := e.Scorer.Trend(s.InstrumentID); ok {
		update.Trend = trend
	}
	e.publish(models.EventPriceUpdate, s.InstrumentID, "", update)

	if e.Alerts != nil {
		for _, tr := range e.Alerts.Observe(s) {
			e.Log.Info("alert triggered",
				logger.String("instrument", tr.InstrumentID),
				logger.String("subscription", tr.SubscriptionID),
				logger.String("price", tr.Price.String()))
			e.publish(models.EventAlertTriggered, tr.InstrumentID, tr.Owner, tr)
		}
	}

	for _, rec := range e.Outcomes.Observe(s) {
		e.handleOutcome(rec)
	}
}

// Evaluate runs indicators, consensus and locking for one instrument and
// emits a signal when a new lock is acquired.
func (e *SignalEngine) Evaluate(ctx context.Context, id string) error {
	st, ok := e.state(id)
	if !ok {
		return fmt.Errorf("evaluate %s: %w", id, models.ErrUnknownInstrument)
	}
	st.evalMu.Lock()
	defer st.evalMu.Unlock()

	if err := e.cancelled(ctx, st); err != nil {
		return err
	}
	start := e.now()
	snap, err := e.Indicators.Evaluate(id)
	if models.IsInsufficientData(err) {
		st.analyzing.Store(true)
		return nil
	}
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", id, err)
	}
	st.analyzing.Store(false)

	score := e.Scorer.Score(snap)
	e.Metrics.RecordLatency("evaluate", e.now().Sub(start).Seconds())
	if err := e.cancelled(ctx, st); err != nil {
		return err
	}

	lock, err := e.Locks.TryAcquire(score)
	if errors.Is(err, ErrNotEligible) || errors.Is(err, models.ErrLockConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", id, err)
	}

	sig, err := e.buildSignal(st.inst, score, lock)
	if err != nil {
		e.Locks.Release(id, lock.ID)
		e.Metrics.RecordError("signal_build")
		return fmt.Errorf("evaluate %s: %w", id, err)
	}
	e.Outcomes.Track(sig)
	e.Metrics.RecordSignal(id, string(sig.Direction))
	e.publish(models.EventTradingSignal, id, "", sig)
	e.Log.Info("trading signal",
		logger.String("instrument", id),
		logger.String("direction", string(sig.Direction)),
		logger.String("price", sig.Price.String()),
		logger.Float64("confidence", sig.Confidence),
		logger.Time("expires_at", sig.ExpiresAt))
	return nil
}

func (e *SignalEngine) cancelled(ctx context.Context, st *instrumentState) error {
	if st.ctx.Err() != nil {
		return fmt.Errorf("evaluate %s: %w", st.inst.ID, models.ErrInstrumentRemoved)
	}
	return ctx.Err()
}

func (e *SignalEngine) buildSignal(inst models.Instrument, score models.ConsensusScore, lock models.SignalLock) (models.Signal, error) {
	latest, err := e.Cache.Latest(inst.ID)
	if err != nil {
		return models.Signal{}, err
	}
	sig := models.Signal{
		ID:             uuid.NewString(),
		LockID:         lock.ID,
		InstrumentID:   inst.ID,
		InstrumentName: inst.Name,
		Category:       inst.Category,
		Direction:      score.Direction,
		Price:          latest.Price,
		PriceAt:        latest.Timestamp,
		Confidence:     score.Confidence,
		Stability:      score.Stability,
		EmittedAt:      lock.AcquiredAt,
		ExpiresAt:      lock.ExpiresAt,
		Votes:          score.Votes,
	}
	risk, err := e.Risk.DeriveRiskParams(sig)
	if err != nil {
		return models.Signal{}, err
	}
	sig.StopLoss, sig.TakeProfit, sig.RiskReward = risk.StopLoss, risk.TakeProfit, risk.RiskReward
	sig.Reason = reason(sig)
	return sig, nil
}

// reason renders the contributing votes, e.g.
// "bullish consensus 86.4% (rsi 24.31 bullish, macd 0.82 bullish); stability 100%; entry 50,010.00, R:R 2.00".
func reason(sig models.Signal) string {
	parts := make([]string, 0, len(sig.Votes))
	for _, v := range sig.Votes {
		if v.Direction != sig.Direction {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", v.Indicator, humanize.FormatFloat("#,###.##", v.Value), v.Direction))
	}
	return fmt.Sprintf("%s consensus %.1f%% (%s); stability %.0f%%; entry %s, R:R %.2f",
		sig.Direction, sig.Confidence, strings.Join(parts, ", "), sig.Stability,
		humanize.FormatFloat("#,###.##", sig.Price.InexactFloat64()), sig.RiskReward)
}

// EvaluateAll evaluates every instrument with bounded parallelism. Failures
// of one instrument are logged and do not stop the others.
func (e *SignalEngine) EvaluateAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for _, in := range e.Instruments() {
		id := in.ID
		g.Go(func() error {
			if err := e.Evaluate(gctx, id); err != nil && !errors.Is(err, context.Canceled) &&
				!errors.Is(err, models.ErrInstrumentRemoved) {
				e.Metrics.RecordError("evaluate")
				e.Log.Warn("evaluation failed", logger.String("instrument", id), logger.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// CheckOutcomes resolves signals whose lock expired by now.
func (e *SignalEngine) CheckOutcomes(now time.Time) int {
	recs := e.Outcomes.Expire(now, e.Cache.Latest)
	for _, rec := range recs {
		e.handleOutcome(rec)
	}
	return len(recs)
}

// handleOutcome unlocks the instrument and feeds the learner before the
// outcome is announced, so the next evaluation sees the new weights.
func (e *SignalEngine) handleOutcome(rec models.OutcomeRecord) {
	e.Locks.Release(rec.InstrumentID, rec.LockID)
	e.Weights.Update(rec)
	e.Metrics.RecordOutcome(rec.InstrumentID, string(rec.Classification))
	e.publish(models.EventSignalOutcome, rec.InstrumentID, "", rec)
	e.Log.Info("signal outcome",
		logger.String("instrument", rec.InstrumentID),
		logger.String("classification", string(rec.Classification)),
		logger.String("resolution", string(rec.Resolution)),
		logger.Float64("magnitude", rec.Magnitude))
}

// Status is the current system_status payload.
func (e *SignalEngine) Status() models.SystemStatus {
	return e.Monitor.Status(e.Analyzing())
}

func (e *SignalEngine) PublishStatus() {
	e.publish(models.EventSystemStatus, "", "", e.Status())
}

// RemoveInstrument cancels in-flight work for id and drops its state everywhere.
func (e *SignalEngine) RemoveInstrument(id string) error {
	e.mu.Lock()
	st, ok := e.states[id]
	delete(e.states, id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("remove %s: %w", id, models.ErrUnknownInstrument)
	}
	st.cancel()

	e.Cache.Remove(id)
	e.Pipeline.Forget(id)
	e.Scorer.Forget(id)
	e.Locks.Remove(id)
	e.Outcomes.Forget(id)
	if e.Alerts != nil {
		e.Alerts.Forget(id)
	}
	e.Monitor.RemoveInstrument(id)
	e.Log.Info("instrument removed", logger.String("instrument", id))
	return nil
}

func (e *SignalEngine) publish(kind models.EventKind, instrument, owner string, payload interface{}) {
	e.Bus.Publish(models.Event{
		Kind:         kind,
		Timestamp:    e.now(),
		InstrumentID: instrument,
		Owner:        owner,
		Payload:      payload,
	})
}
