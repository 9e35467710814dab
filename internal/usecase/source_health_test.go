package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalPulse/internal/domain/models"
	"SignalPulse/pkg/logger"
	"SignalPulse/pkg/metrics"
)

func testInstruments() []models.Instrument {
	return []models.Instrument{
		{ID: "BTCUSDT", Category: models.CategoryCrypto, Source: "binance", Fallback: "coingecko", Precision: 2},
		{ID: "EURUSD", Category: models.CategoryForex, Source: "exchangerate", Precision: 5},
	}
}

func newMonitor(opts ...MonitorOption) *SourceMonitor {
	return NewSourceMonitor([]string{"binance", "coingecko", "exchangerate"}, testInstruments(), 3,
		metrics.Nop{}, logger.Nop(), opts...)
}

func TestSourceDegradesAfterConsecutiveFailures(t *testing.T) {
	var changes []models.HealthState
	m := newMonitor(WithHealthListener(func(_ string, s models.HealthState) { changes = append(changes, s) }))
	boom := errors.New("connection reset")

	m.RecordFailure("exchangerate", boom)
	m.RecordFailure("exchangerate", boom)
	assert.False(t, m.IsDegraded("exchangerate"))
	m.RecordFailure("exchangerate", boom)
	assert.True(t, m.IsDegraded("exchangerate"))
	m.RecordFailure("exchangerate", boom)

	assert.True(t, m.InstrumentOffline("EURUSD"))
	assert.False(t, m.InstrumentOffline("BTCUSDT"))

	m.RecordSuccess("exchangerate")
	assert.False(t, m.IsDegraded("exchangerate"))
	assert.Equal(t, []models.HealthState{models.SourceDegraded, models.SourceHealthy}, changes)
}

func TestInstrumentOfflineOnlyWhenAllSourcesDegraded(t *testing.T) {
	m := newMonitor()
	for i := 0; i < 3; i++ {
		m.RecordFailure("binance", errors.New("down"))
	}
	assert.True(t, m.IsDegraded("binance"))
	assert.False(t, m.InstrumentOffline("BTCUSDT"), "fallback still healthy")

	for i := 0; i < 3; i++ {
		m.RecordFailure("coingecko", &models.RateLimitError{Source: "coingecko"})
	}
	assert.True(t, m.InstrumentOffline("BTCUSDT"))
}

func TestStatusModes(t *testing.T) {
	m := newMonitor()
	st := m.Status([]string{"EURUSD"})
	assert.Equal(t, models.ModeHealthy, st.Mode)
	assert.False(t, st.OfflineMode)
	assert.Equal(t, []string{"EURUSD"}, st.AnalyzingInstruments)
	require.Len(t, st.Sources, 3)
	assert.Equal(t, "binance", st.Sources[0].Name)

	m.RecordSuccess("binance")
	for i := 0; i < 3; i++ {
		m.RecordFailure("exchangerate", errors.New("down"))
	}
	st = m.Status(nil)
	assert.Equal(t, models.ModeDegraded, st.Mode)
	assert.True(t, st.OfflineMode)
	assert.Equal(t, []string{"EURUSD"}, st.OfflineInstruments)
	assert.InDelta(t, 100.0, st.Sources[0].SuccessRate, 1e-9)

	for _, s := range []string{"binance", "coingecko"} {
		for i := 0; i < 3; i++ {
			m.RecordFailure(s, errors.New("down"))
		}
	}
	assert.Equal(t, models.ModeOffline, m.Status(nil).Mode)
}

func TestUnknownSourceIgnored(t *testing.T) {
	m := newMonitor()
	m.RecordFailure("nope", errors.New("x"))
	m.RecordSuccess("nope")
	assert.False(t, m.IsDegraded("nope"))
	assert.False(t, m.InstrumentOffline("DOGE"))
}
