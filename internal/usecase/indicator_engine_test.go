package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalPulse/internal/domain/models"
	"SignalPulse/internal/services/indicators"
)

func fill(t *testing.T, c *PriceCache, id string, prices []float64) {
	t.Helper()
	for i, p := range prices {
		require.NoError(t, c.Record(sample(id, p, t0.Add(time.Duration(i)*time.Second))))
	}
}

func risingPrices(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestIndicatorEngineInsufficientData(t *testing.T) {
	c := NewPriceCache(200, []string{"BTCUSDT"})
	e := NewIndicatorEngine(c, indicators.DefaultParams())
	fill(t, c, "BTCUSDT", risingPrices(5, 100, 1))

	_, err := e.Evaluate("BTCUSDT")
	require.Error(t, err)
	assert.True(t, models.IsInsufficientData(err))
}

func TestIndicatorEngineRisingSeriesIsOverbought(t *testing.T) {
	c := NewPriceCache(200, []string{"BTCUSDT"})
	e := NewIndicatorEngine(c, indicators.DefaultParams())
	fill(t, c, "BTCUSDT", risingPrices(20, 50000, 25))

	snap, err := e.Evaluate("BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, snap.RSI)
	assert.Greater(t, *snap.RSI, 70.0)
	assert.Equal(t, 20, snap.Samples)
	assert.NotNil(t, snap.Bollinger)
	assert.Nil(t, snap.MACD, "macd warms up later")
}

func TestIndicatorEngineIdempotent(t *testing.T) {
	c := NewPriceCache(200, []string{"BTCUSDT"})
	e := NewIndicatorEngine(c, indicators.DefaultParams())
	fill(t, c, "BTCUSDT", []float64{10, 11, 10.5, 12, 11.8, 12.4, 13, 12.1, 11.9, 12.7,
		13.3, 13.1, 12.2, 12.9, 13.8, 14.1, 13.6, 13.9, 14.4, 14.2, 14.8, 15.1, 14.6, 14.9,
		15.5, 15.2, 15.9, 16.3, 16.1, 15.7, 16.6, 16.9, 16.4, 17.2, 17.5, 17.1})

	a, err := e.Evaluate("BTCUSDT")
	require.NoError(t, err)
	b, err := e.Evaluate("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotNil(t, a.MACD)
}

func TestIndicatorEngineIgnoresRejectedSample(t *testing.T) {
	c := NewPriceCache(200, []string{"BTCUSDT"})
	e := NewIndicatorEngine(c, indicators.DefaultParams())
	fill(t, c, "BTCUSDT", risingPrices(30, 100, 0.5))

	before, err := e.Evaluate("BTCUSDT")
	require.NoError(t, err)

	err = c.Record(sample("BTCUSDT", 1, t0.Add(-time.Hour)))
	var stale *models.StaleTimestampError
	require.ErrorAs(t, err, &stale)

	after, err := e.Evaluate("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
