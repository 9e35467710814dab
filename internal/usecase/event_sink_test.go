package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalPulse/internal/domain/models"
	"SignalPulse/pkg/logger"
	"SignalPulse/pkg/metrics"
)

type memJournal struct {
	mu       sync.Mutex
	signals  []models.Signal
	outcomes []models.OutcomeRecord
	err      error
	closed   bool
}

func (j *memJournal) Init(context.Context) error { return nil }

func (j *memJournal) StoreSignal(_ context.Context, s models.Signal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.signals = append(j.signals, s)
	return nil
}

func (j *memJournal) StoreOutcome(_ context.Context, r models.OutcomeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.outcomes = append(j.outcomes, r)
	return nil
}

func (j *memJournal) RecentOutcomes(context.Context, string, time.Time, int) ([]models.OutcomeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.OutcomeRecord(nil), j.outcomes...), nil
}

func (j *memJournal) Health(context.Context) error { return nil }

func (j *memJournal) Close() error {
	j.closed = true
	return nil
}

func (j *memJournal) counts() (int, int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.signals), len(j.outcomes)
}

type memPublisher struct {
	mu      sync.Mutex
	batches [][]models.Event
	closed  bool
}

func (p *memPublisher) Publish(ctx context.Context, ev models.Event) error {
	return p.PublishBatch(ctx, []models.Event{ev})
}

func (p *memPublisher) PublishBatch(_ context.Context, evs []models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]models.Event(nil), evs...))
	return nil
}

func (p *memPublisher) Close() error {
	p.closed = true
	return nil
}

func (p *memPublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func signalEvent(id string) models.Event {
	return models.Event{
		Kind:         models.EventTradingSignal,
		InstrumentID: "BTCUSDT",
		Timestamp:    t0,
		Payload: models.Signal{
			ID: id, LockID: "lock-" + id, InstrumentID: "BTCUSDT", Direction: models.DirectionBullish,
			Price: decimal.NewFromInt(50000), Confidence: 90, EmittedAt: t0,
		},
	}
}

func outcomeEvent(id string) models.Event {
	return models.Event{
		Kind:         models.EventSignalOutcome,
		InstrumentID: "BTCUSDT",
		Timestamp:    t0,
		Payload: models.OutcomeRecord{
			SignalID: id, LockID: "lock-" + id, InstrumentID: "BTCUSDT",
			Classification: models.OutcomeWin, Resolution: models.ResolvedTakeProfit,
			EntryPrice: decimal.NewFromInt(50000), ExitPrice: decimal.NewFromInt(51000),
		},
	}
}

func TestEventSinkJournalJournalsSignalsAndOutcomes(t *testing.T) {
	j := &memJournal{}
	sink := NewEventSink(nil, j, metrics.Nop{}, logger.Nop(), SinkJournal, 10, time.Second)

	require.NoError(t, sink.Process(context.Background(), signalEvent("s1")))
	require.NoError(t, sink.ProcessBatch(context.Background(), []models.Event{
		outcomeEvent("s1"),
		{Kind: models.EventPriceUpdate, InstrumentID: "BTCUSDT", Payload: models.PriceUpdate{}},
	}))

	signals, outcomes := j.counts()
	assert.Equal(t, 1, signals)
	assert.Equal(t, 1, outcomes)
}

func TestEventSinkReportsBackendErrors(t *testing.T) {
	j := &memJournal{err: errors.New("connection reset")}
	sink := NewEventSink(nil, j, metrics.Nop{}, logger.Nop(), SinkJournal, 10, time.Second)
	err := sink.ProcessBatch(context.Background(), []models.Event{signalEvent("a"), outcomeEvent("a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	bad := NewEventSink(nil, j, metrics.Nop{}, logger.Nop(), "s3", 10, time.Second)
	assert.ErrorContains(t, bad.Process(context.Background(), signalEvent("b")), "unknown backend")
}

func TestEventSinkRunBatchesBySizeAndFlushesOnClose(t *testing.T) {
	pub := &memPublisher{}
	sink := NewEventSink(pub, nil, metrics.Nop{}, logger.Nop(), SinkKafka, 3, time.Hour)

	events := make(chan models.Event)
	done := make(chan error, 1)
	go func() { done <- sink.Run(context.Background(), events) }()

	for i := 0; i < 7; i++ {
		events <- signalEvent(string(rune('a' + i)))
	}
	close(events)
	require.NoError(t, <-done)

	require.Len(t, pub.batches, 3)
	assert.Len(t, pub.batches[0], 3)
	assert.Len(t, pub.batches[1], 3)
	assert.Len(t, pub.batches[2], 1)

	sink.Close()
	assert.True(t, pub.closed)
}

func TestEventSinkRunFlushesOnTimeoutAndCancel(t *testing.T) {
	pub := &memPublisher{}
	sink := NewEventSink(pub, nil, metrics.Nop{}, logger.Nop(), SinkKafka, 100, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan models.Event, 4)
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx, events) }()

	events <- signalEvent("a")
	assert.Eventually(t, func() bool { return pub.total() == 1 }, time.Second, 5*time.Millisecond)

	events <- outcomeEvent("a")
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 2, pub.total()+len(events))
}

func TestKafkaJournalHandlerDecodesEnvelope(t *testing.T) {
	j := &memJournal{}
	h := NewKafkaJournalHandler("signalpulse.events", j, metrics.Nop{})
	assert.Equal(t, "signalpulse.events", h.Topic())

	for _, ev := range []models.Event{signalEvent("s1"), outcomeEvent("s1"), {Kind: models.EventSystemStatus, Payload: models.SystemStatus{}}} {
		b, err := json.Marshal(ev)
		require.NoError(t, err)
		require.NoError(t, h.Handle(context.Background(), b))
	}

	require.Len(t, j.signals, 1)
	assert.Equal(t, "s1", j.signals[0].ID)
	assert.True(t, j.signals[0].Price.Equal(decimal.NewFromInt(50000)))
	require.Len(t, j.outcomes, 1)
	assert.Equal(t, models.OutcomeWin, j.outcomes[0].Classification)
	assert.True(t, j.outcomes[0].ExitPrice.Equal(decimal.NewFromInt(51000)))

	assert.Error(t, h.Handle(context.Background(), []byte("{not json")))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"kind":"trading_signal","payload":"oops"}`)))

	failing := NewKafkaJournalHandler("signalpulse.events", &memJournal{err: errors.New("disk full")}, metrics.Nop{})
	b, err := json.Marshal(outcomeEvent("s2"))
	require.NoError(t, err)
	assert.ErrorContains(t, failing.Handle(context.Background(), b), "disk full")
}
