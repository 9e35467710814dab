package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalPulse/internal/domain/models"
	"SignalPulse/pkg/metrics"
)

type captureSink struct {
	got []models.PriceSample
	err error
}

func (c *captureSink) Record(s models.PriceSample) error {
	if c.err != nil {
		return c.err
	}
	c.got = append(c.got, s)
	return nil
}

var eurusd = models.Instrument{ID: "EURUSD", Category: models.CategoryForex, Source: "exchangerate", Precision: 5}

func quote(price string, ts time.Time) models.Quote {
	return models.Quote{InstrumentID: "EURUSD", Source: "exchangerate", Price: decimal.RequireFromString(price), Timestamp: ts}
}

func TestQuotePipelineRoundsAndForwards(t *testing.T) {
	sink := &captureSink{}
	p := NewQuotePipeline(sink, metrics.Nop{})
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	s, err := p.Process(context.Background(), eurusd, quote("1.0876543", ts))
	require.NoError(t, err)
	assert.Equal(t, "1.08765", s.Price.String())
	require.Len(t, sink.got, 1)
	assert.Equal(t, ts, sink.got[0].Timestamp)
}

func TestQuotePipelineRejectsInvalid(t *testing.T) {
	p := NewQuotePipeline(&captureSink{}, metrics.Nop{})
	ts := time.Now()
	cases := map[string]models.Quote{
		"zero price":       quote("0", ts),
		"negative price":   quote("-1", ts),
		"missing time":     quote("1.1", time.Time{}),
		"wrong instrument": {InstrumentID: "GBPUSD", Price: decimal.NewFromInt(1), Timestamp: ts},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Process(context.Background(), eurusd, q)
			assert.ErrorIs(t, err, ErrInvalidQuote)
		})
	}
}

func TestQuotePipelineThrottle(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sink := &captureSink{}
	p := NewQuotePipeline(sink, metrics.Nop{},
		WithMinInterval(time.Second),
		WithClock(func() time.Time { return now }))

	_, err := p.Process(context.Background(), eurusd, quote("1.1", now))
	require.NoError(t, err)

	now = now.Add(500 * time.Millisecond)
	_, err = p.Process(context.Background(), eurusd, quote("1.2", now))
	assert.ErrorIs(t, err, ErrThrottled)

	now = now.Add(600 * time.Millisecond)
	_, err = p.Process(context.Background(), eurusd, quote("1.3", now))
	require.NoError(t, err)
	assert.Len(t, sink.got, 2)
}

func TestQuotePipelineWrapsDownstreamError(t *testing.T) {
	stale := &models.StaleTimestampError{Instrument: "EURUSD"}
	p := NewQuotePipeline(&captureSink{err: stale}, metrics.Nop{})
	_, err := p.Process(context.Background(), eurusd, quote("1.1", time.Now()))
	var se *models.StaleTimestampError
	assert.ErrorAs(t, err, &se)
}

func TestQuotePipelineDropsRepeatedQuote(t *testing.T) {
	sink := &captureSink{}
	p := NewQuotePipeline(sink, metrics.Nop{})
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := p.Process(context.Background(), eurusd, quote("1.1", ts))
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = p.Process(context.Background(), eurusd, quote("1.1", ts))
		assert.ErrorIs(t, err, ErrDuplicateQuote)
	}
	require.Len(t, sink.got, 1)

	fallback := quote("1.1", ts)
	fallback.Source = "twelvedata"
	_, err = p.Process(context.Background(), eurusd, fallback)
	require.NoError(t, err, "same time from another source is a new observation")

	_, err = p.Process(context.Background(), eurusd, quote("1.2", ts.Add(time.Second)))
	require.NoError(t, err)
	assert.Len(t, sink.got, 3)

	p.Forget("EURUSD")
	_, err = p.Process(context.Background(), eurusd, quote("1.2", ts.Add(time.Second)))
	require.NoError(t, err)
}

func TestQuotePipelineRejectedQuoteIsNotRemembered(t *testing.T) {
	sink := &captureSink{err: &models.StaleTimestampError{Instrument: "EURUSD"}}
	p := NewQuotePipeline(sink, metrics.Nop{})
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := p.Process(context.Background(), eurusd, quote("1.1", ts))
	require.Error(t, err)

	sink.err = nil
	_, err = p.Process(context.Background(), eurusd, quote("1.1", ts))
	require.NoError(t, err)
	assert.Len(t, sink.got, 1)
}
