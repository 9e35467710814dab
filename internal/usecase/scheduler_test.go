package usecase

import (
	"context"
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

type fakeSource struct {
	name  string
	price float64

	mu      sync.Mutex
	err     error
	at      time.Time // fixed quote time, zero means now
	stall   bool      // block until the fetch context ends
	calls   map[string]int
	started bool
	closed  bool
}

func newFakeSource(name string, price float64) *fakeSource {
	return &fakeSource{name: name, price: price, calls: make(map[string]int)}
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchQuote(ctx context.Context, inst models.Instrument) (models.Quote, error) {
	f.mu.Lock()
	f.calls[inst.ID]++
	err, at, stall := f.err, f.at, f.stall
	f.mu.Unlock()
	if stall {
		<-ctx.Done()
		return models.Quote{}, ctx.Err()
	}
	if err != nil {
		return models.Quote{}, err
	}
	if at.IsZero() {
		at = time.Now()
	}
	return models.Quote{InstrumentID: inst.ID, Price: decimal.NewFromFloat(f.price), Timestamp: at}, nil
}

func (f *fakeSource) callsFor(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type lifecycleSource struct{ *fakeSource }

func (l lifecycleSource) Start(context.Context) error {
	l.mu.Lock()
	l.started = true
	l.mu.Unlock()
	return nil
}

func (l lifecycleSource) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

func testSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		EvaluationInterval: 10 * time.Millisecond,
		OutcomeInterval:    10 * time.Millisecond,
		Backoff:            BackoffPolicy{Max: time.Minute, RateLimitMultiplier: 2, MaxRateLimitMultiplier: 8},
	}
}

func TestSchedulerFallbackTakesOverWhenPrimaryDegrades(t *testing.T) {
	f := newEngineFixture()
	binance := newFakeSource("binance", 50000)
	binance.err = errors.New("connection refused")
	coingecko := newFakeSource("coingecko", 50010)

	primary := PollSource{Source: binance, PollInterval: time.Second, Timeout: time.Second}
	backup := PollSource{Source: coingecko, PollInterval: time.Second, Timeout: time.Second}
	s := NewScheduler(testSchedulerConfig(), []PollSource{primary, backup}, f.engine, f.engine.Monitor, f.weights,
		metrics.Nop{}, logger.Nop())

	assert.Empty(t, s.Due("coingecko"))

	b := NewBackoff(time.Second, testSchedulerConfig().Backoff)
	b.rnd = func() float64 { return 0 }
	ctx := context.Background()
	assert.Equal(t, 2*time.Second, s.PollOnce(ctx, primary, b))
	s.PollOnce(ctx, primary, b)
	assert.False(t, f.engine.Monitor.IsDegraded("binance"))
	s.PollOnce(ctx, primary, b)
	require.True(t, f.engine.Monitor.IsDegraded("binance"))

	due := s.Due("coingecko")
	require.Len(t, due, 1)
	assert.Equal(t, "BTCUSDT", due[0].ID)

	s.PollOnce(ctx, backup, NewBackoff(time.Second, BackoffPolicy{}))
	latest, err := f.engine.Cache.Latest("BTCUSDT")
	require.NoError(t, err)
	assert.True(t, latest.Price.Equal(decimal.NewFromInt(50010)))

	binance.mu.Lock()
	binance.err = nil
	binance.mu.Unlock()
	s.PollOnce(ctx, primary, b)
	assert.False(t, f.engine.Monitor.IsDegraded("binance"))
	assert.Empty(t, s.Due("coingecko"))
}

func TestSchedulerWrapsUntypedFetchErrors(t *testing.T) {
	f := newEngineFixture()
	src := newFakeSource("exchangerate", 1.08)
	src.err = errors.New("EOF")
	s := NewScheduler(testSchedulerConfig(), nil, f.engine, f.engine.Monitor, f.weights, metrics.Nop{}, logger.Nop())

	s.PollOnce(context.Background(), PollSource{Source: src, PollInterval: time.Second}, NewBackoff(time.Second, BackoffPolicy{}))

	health := sourceHealth(f.engine, "exchangerate")
	assert.Equal(t, 1, health.ConsecutiveFailures)
	assert.Contains(t, health.LastError, "fetch EURUSD from exchangerate")
}

func sourceHealth(e *SignalEngine, name string) models.SourceHealth {
	for _, h := range e.Status().Sources {
		if h.Name == name {
			return h
		}
	}
	return models.SourceHealth{}
}

func TestSchedulerStalledSourceTimesOut(t *testing.T) {
	f := newEngineFixture()
	src := newFakeSource("binance", 50000)
	src.stall = true
	s := NewScheduler(testSchedulerConfig(), nil, f.engine, f.engine.Monitor, f.weights, metrics.Nop{}, logger.Nop())

	start := time.Now()
	s.PollOnce(context.Background(), PollSource{Source: src, PollInterval: time.Second, Timeout: 50 * time.Millisecond},
		NewBackoff(time.Second, BackoffPolicy{}))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, src.callsFor("BTCUSDT"))

	health := sourceHealth(f.engine, "binance")
	assert.Equal(t, 1, health.ConsecutiveFailures)
	assert.Contains(t, health.LastError, "fetch BTCUSDT from binance")
	assert.Contains(t, health.LastError, context.DeadlineExceeded.Error())
	assert.Zero(t, f.engine.Cache.Len("BTCUSDT"))
}

func TestSchedulerSkipsRepeatedQuote(t *testing.T) {
	f := newEngineFixture()
	src := newFakeSource("binance", 50000)
	src.at = t0
	s := NewScheduler(testSchedulerConfig(), nil, f.engine, f.engine.Monitor, f.weights, metrics.Nop{}, logger.Nop())
	poll := PollSource{Source: src, PollInterval: time.Second, Timeout: time.Second}

	for i := 0; i < 5; i++ {
		s.PollOnce(context.Background(), poll, NewBackoff(time.Second, BackoffPolicy{}))
	}
	assert.Equal(t, 5, src.callsFor("BTCUSDT"))
	assert.Equal(t, 1, f.engine.Cache.Len("BTCUSDT"), "one trade yields one sample")
	assert.Len(t, f.bus.of(models.EventPriceUpdate), 1)

	health := sourceHealth(f.engine, "binance")
	assert.Zero(t, health.ConsecutiveFailures)
	assert.False(t, f.engine.Monitor.IsDegraded("binance"))

	src.mu.Lock()
	src.at = t0.Add(time.Second)
	src.mu.Unlock()
	s.PollOnce(context.Background(), poll, NewBackoff(time.Second, BackoffPolicy{}))
	assert.Equal(t, 2, f.engine.Cache.Len("BTCUSDT"))
}

func TestSchedulerRunsLoopsUntilCancelled(t *testing.T) {
	f := newEngineFixture()
	binance := newFakeSource("binance", 50000)
	fx := lifecycleSource{newFakeSource("exchangerate", 1.08)}

	cfg := testSchedulerConfig()
	cfg.StatusSchedule = "@every 1s"
	s := NewScheduler(cfg, []PollSource{
		{Source: binance, PollInterval: 5 * time.Millisecond, Timeout: time.Second},
		{Source: fx, PollInterval: 5 * time.Millisecond, Timeout: time.Second},
	}, f.engine, f.engine.Monitor, f.weights, metrics.Nop{}, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Start(ctx))

	assert.Greater(t, binance.callsFor("BTCUSDT"), 1)
	assert.Greater(t, fx.callsFor("EURUSD"), 1)
	assert.Greater(t, f.engine.Cache.Len("BTCUSDT"), 1)
	assert.NotEmpty(t, f.bus.of(models.EventSystemStatus))

	fx.mu.Lock()
	defer fx.mu.Unlock()
	assert.True(t, fx.started)
	assert.True(t, fx.closed)
}
