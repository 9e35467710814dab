package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
)

// Sink is the minimal downstream the pipeline needs.
type Sink interface {
	Record(s models.PriceSample) error
}

var (
	ErrInvalidQuote = errors.New("invalid quote")
	ErrThrottled    = errors.New("quote throttled")
)

// ErrDuplicateQuote marks a quote repeating the last accepted source and
// timestamp for its instrument, e.g. a stream with no new trade.
var ErrDuplicateQuote = errors.New("duplicate quote")

// QuotePipeline sits between source adapters and the price cache.
// It validates, drops repeated quotes and throttles per instrument. Accepted
// quotes are rounded to the instrument precision and forwarded.
type QuotePipeline struct {
	sink        Sink
	metrics     domrepo.Metrics
	minInterval time.Duration
	now         func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time // per-instrument last accepted wall time
	accepted map[string]quoteKey
}

type quoteKey struct {
	source string
	at     time.Time
}

type PipelineOption func(*QuotePipeline)

// WithMinInterval drops quotes arriving faster than d for one instrument.
func WithMinInterval(d time.Duration) PipelineOption {
	return func(p *QuotePipeline) {
		if d > 0 {
			p.minInterval = d
		}
	}
}

// WithClock overrides the wall clock used by the throttle.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *QuotePipeline) { p.now = now }
}

func NewQuotePipeline(sink Sink, metrics domrepo.Metrics, opts ...PipelineOption) *QuotePipeline {
	p := &QuotePipeline{
		sink:     sink,
		metrics:  metrics,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
		accepted: make(map[string]quoteKey),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates q for inst and records it. Throttled quotes return
// ErrThrottled and repeats of the last accepted quote ErrDuplicateQuote.
func (p *QuotePipeline) Process(_ context.Context, inst models.Instrument, q models.Quote) (models.PriceSample, error) {
	start := p.now()
	if err := validateQuote(inst, q); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return models.PriceSample{}, err
	}
	key := quoteKey{source: q.Source, at: q.Timestamp}
	if p.isRepeat(inst.ID, key) {
		p.metrics.RecordError("pipeline_duplicate")
		return models.PriceSample{}, ErrDuplicateQuote
	}
	if !p.allow(inst.ID, start) {
		p.metrics.RecordError("pipeline_throttle")
		return models.PriceSample{}, ErrThrottled
	}

	s := q.Sample()
	s.Price = s.Price.Round(inst.Precision)
	if err := p.sink.Record(s); err != nil {
		p.metrics.RecordError("pipeline_record")
		return models.PriceSample{}, fmt.Errorf("pipeline downstream: %w", err)
	}
	p.mu.Lock()
	p.accepted[inst.ID] = key
	p.mu.Unlock()
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return s, nil
}

// Forget clears throttle and repeat state for a removed instrument.
func (p *QuotePipeline) Forget(instrument string) {
	p.mu.Lock()
	delete(p.lastSeen, instrument)
	delete(p.accepted, instrument)
	p.mu.Unlock()
}

func validateQuote(inst models.Instrument, q models.Quote) error {
	if q.InstrumentID == "" || q.InstrumentID != inst.ID {
		return fmt.Errorf("%w: instrument %q", ErrInvalidQuote, q.InstrumentID)
	}
	if q.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp missing", ErrInvalidQuote)
	}
	if !q.Price.IsPositive() {
		return fmt.Errorf("%w: non-positive price %s", ErrInvalidQuote, q.Price)
	}
	return nil
}

func (p *QuotePipeline) isRepeat(instrument string, key quoteKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.accepted[instrument]
	return ok && last.source == key.source && last.at.Equal(key.at)
}

func (p *QuotePipeline) allow(instrument string, now time.Time) bool {
	if p.minInterval <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[instrument]
	if !last.IsZero() && now.Sub(last) < p.minInterval {
		return false
	}
	p.lastSeen[instrument] = now
	return true
}
