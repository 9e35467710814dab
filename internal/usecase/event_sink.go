package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalPulse/internal/domain/models"
	drepo "SignalPulse/internal/domain/repository"
	"SignalPulse/pkg/logger"
)

const (
	SinkKafka   = "kafka"
	SinkJournal = "journal"
)

// EventSink drains dispatcher events into the configured backend. The kafka
// backend forwards every event it receives; the journal backend stores
// signals and outcomes directly.
type EventSink struct {
	pub     drepo.EventPublisher
	journal drepo.Journal
	metrics drepo.Metrics
	log     *logger.Logger
	backend string
	batchSz int
	batchTO time.Duration
}

func NewEventSink(
	pub drepo.EventPublisher,
	journal drepo.Journal,
	metrics drepo.Metrics,
	log *logger.Logger,
	backend string,
	batchSz int,
	batchTO time.Duration,
) *EventSink {
	if batchSz < 1 {
		batchSz = 1
	}
	if batchTO <= 0 {
		batchTO = time.Second
	}
	return &EventSink{
		pub:     pub,
		journal: journal,
		metrics: metrics,
		log:     log,
		backend: backend,
		batchSz: batchSz,
		batchTO: batchTO,
	}
}

func (p *EventSink) Backend() string { return p.backend }

// Process routes a single event to the backend.
func (p *EventSink) Process(ctx context.Context, ev models.Event) error {
	start := time.Now()
	var err error

	switch p.backend {
	case SinkKafka:
		err = p.pub.Publish(ctx, ev)
	case SinkJournal:
		err = storeJournal(ctx, p.journal, ev)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("sink")
		return fmt.Errorf("sink %s event: %w", ev.Kind, err)
	}
	p.metrics.RecordLatency("sink", time.Since(start).Seconds())
	return nil
}

func (p *EventSink) ProcessBatch(ctx context.Context, evs []models.Event) error {
	if len(evs) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case SinkKafka:
		err = p.pub.PublishBatch(ctx, evs)
	case SinkJournal:
		var errs []error
		for _, ev := range evs {
			if e := storeJournal(ctx, p.journal, ev); e != nil {
				errs = append(errs, e)
			}
		}
		err = errors.Join(errs...)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("sink_batch")
		return fmt.Errorf("sink batch: %w", err)
	}
	p.metrics.RecordLatency("sink_batch", time.Since(start).Seconds())
	return nil
}

// Run batches events until batchSz is reached or batchTO elapses. It flushes
// what is left and returns when events is closed or ctx is done.
func (p *EventSink) Run(ctx context.Context, events <-chan models.Event) error {
	batch := make([]models.Event, 0, p.batchSz)
	flush := func(fctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := p.ProcessBatch(fctx, batch); err != nil {
			p.log.Error("event sink flush failed",
				logger.String("backend", p.backend),
				logger.Int("events", len(batch)),
				logger.Error(err))
		}
		batch = batch[:0]
	}

	t := time.NewTicker(p.batchTO)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(fctx)
			cancel()
			return nil
		case ev, ok := <-events:
			if !ok {
				flush(ctx)
				return nil
			}
			batch = append(batch, ev)
			if len(batch) >= p.batchSz {
				flush(ctx)
			}
		case <-t.C:
			flush(ctx)
		}
	}
}

func (p *EventSink) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.journal != nil {
		_ = p.journal.Close()
	}
}

// storeJournal writes the journaled kinds and ignores the rest.
func storeJournal(ctx context.Context, j drepo.Journal, ev models.Event) error {
	switch v := ev.Payload.(type) {
	case models.Signal:
		return j.StoreSignal(ctx, v)
	case *models.Signal:
		return j.StoreSignal(ctx, *v)
	case models.OutcomeRecord:
		return j.StoreOutcome(ctx, v)
	case *models.OutcomeRecord:
		return j.StoreOutcome(ctx, *v)
	default:
		return nil
	}
}
