package repository

import (
	"context"
	"time"

	"SignalPulse/internal/domain/models"
)

// QuoteSource is the pull contract every provider adapter implements.
type QuoteSource interface {
	Name() string
	FetchQuote(ctx context.Context, inst models.Instrument) (models.Quote, error)
}

// Lifecycle is implemented by sources that hold a connection open.
type Lifecycle interface {
	Start(ctx context.Context) error
	Close() error
}

// EventBus fans events out to in-process subscribers without blocking.
type EventBus interface {
	Publish(ev models.Event)
}

// EventPublisher ships dispatcher events out of process.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.Event) error
	PublishBatch(ctx context.Context, evs []models.Event) error
	Close() error
}

// Journal stores emitted signals and their outcomes for learning feedback.
type Journal interface {
	Init(ctx context.Context) error
	StoreSignal(ctx context.Context, s models.Signal) error
	StoreOutcome(ctx context.Context, r models.OutcomeRecord) error
	RecentOutcomes(ctx context.Context, instrument string, since time.Time, limit int) ([]models.OutcomeRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// WeightStore persists the learner state across restarts.
// Load returns models.ErrNoData when nothing was saved yet.
type WeightStore interface {
	Load(ctx context.Context) (models.WeightState, error)
	Save(ctx context.Context, st models.WeightState) error
	Close() error
}

type Metrics interface {
	RecordPrice(instrument string, price float64)
	RecordFetch(source, result string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordSignal(instrument string, direction string)
	RecordOutcome(instrument string, classification string)
	SetWeight(indicator string, weight float64)
	SetSourceHealth(source string, healthy bool)
	RecordDispatchDrop(kind string)
}
