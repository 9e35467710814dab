package usecase

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalPulse/internal/domain/models"
)

func knownIDs(ids ...string) func(string) bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(id string) bool { return set[id] }
}

func TestAlertFiresOnceOnCrossing(t *testing.T) {
	m := NewAlertMonitor(knownIDs("BTCUSDT"))
	sub, err := m.Create("BTCUSDT", decimal.NewFromInt(50000), models.CompareAbove, "session-1")
	require.NoError(t, err)

	var fired []models.AlertTrigger
	for i, p := range []float64{49990, 50010, 50020, 50030} {
		fired = append(fired, m.Observe(sample("BTCUSDT", p, t0.Add(secs(i))))...)
	}
	require.Len(t, fired, 1)
	assert.Equal(t, sub.ID, fired[0].SubscriptionID)
	assert.Equal(t, "session-1", fired[0].Owner)
	assert.True(t, fired[0].Price.Equal(decimal.NewFromInt(50010)))
}

func TestAlertRearmsAfterFallingBack(t *testing.T) {
	m := NewAlertMonitor(knownIDs("XAUUSD"))
	_, err := m.Create("XAUUSD", decimal.NewFromInt(2000), models.CompareBelow, "o")
	require.NoError(t, err)

	count := 0
	for i, p := range []float64{2010, 1995, 1990, 2005, 1999} {
		count += len(m.Observe(sample("XAUUSD", p, t0.Add(secs(i)))))
	}
	assert.Equal(t, 2, count)
}

func TestAlertDisabledAndDeleted(t *testing.T) {
	m := NewAlertMonitor(knownIDs("ETHUSDT"))
	sub, err := m.Create("ETHUSDT", decimal.NewFromInt(3000), models.CompareAbove, "o")
	require.NoError(t, err)

	_, err = m.SetEnabled(sub.ID, "o", false)
	require.NoError(t, err)
	assert.Empty(t, m.Observe(sample("ETHUSDT", 3100, t0)))

	_, err = m.SetEnabled(sub.ID, "o", true)
	require.NoError(t, err)
	assert.Len(t, m.Observe(sample("ETHUSDT", 3100, t0.Add(time.Second))), 1)

	require.NoError(t, m.Delete(sub.ID, "o"))
	assert.ErrorIs(t, m.Delete(sub.ID, "o"), models.ErrAlertNotFound)
	_, err = m.SetEnabled(sub.ID, "o", true)
	assert.ErrorIs(t, err, models.ErrAlertNotFound)
}

func TestAlertOwnerIsolation(t *testing.T) {
	m := NewAlertMonitor(knownIDs("ETHUSDT", "BTCUSDT"))
	sub, err := m.Create("ETHUSDT", decimal.NewFromInt(3000), models.CompareAbove, "alice")
	require.NoError(t, err)

	_, err = m.SetEnabled(sub.ID, "mallory", false)
	assert.ErrorIs(t, err, models.ErrAlertNotFound)
	assert.ErrorIs(t, m.Delete(sub.ID, "mallory"), models.ErrAlertNotFound)
	assert.ErrorIs(t, m.Delete(sub.ID, ""), models.ErrAlertNotFound)

	got := m.List("alice")
	require.Len(t, got, 1)
	assert.True(t, got[0].Enabled)
	require.NoError(t, m.Delete(sub.ID, "alice"))
}

func TestAlertWatchedInstruments(t *testing.T) {
	m := NewAlertMonitor(knownIDs("ETHUSDT", "BTCUSDT", "EURUSD"))
	for _, inst := range []string{"ETHUSDT", "BTCUSDT", "ETHUSDT"} {
		_, err := m.Create(inst, decimal.NewFromInt(1), models.CompareAbove, "alice")
		require.NoError(t, err)
	}
	off, err := m.Create("EURUSD", decimal.NewFromInt(1), models.CompareBelow, "alice")
	require.NoError(t, err)
	_, err = m.SetEnabled(off.ID, "alice", false)
	require.NoError(t, err)
	_, err = m.Create("EURUSD", decimal.NewFromInt(1), models.CompareBelow, "bob")
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, m.WatchedInstruments("alice"))
	assert.Equal(t, []string{"EURUSD"}, m.WatchedInstruments("bob"))
	assert.Empty(t, m.WatchedInstruments("carol"))
}

func TestAlertCreateValidation(t *testing.T) {
	m := NewAlertMonitor(knownIDs("BTCUSDT"))
	_, err := m.Create("DOGE", decimal.NewFromInt(1), models.CompareAbove, "o")
	assert.ErrorIs(t, err, models.ErrUnknownInstrument)
	_, err = m.Create("BTCUSDT", decimal.NewFromInt(1), "sideways", "o")
	assert.Error(t, err)
}

func TestAlertListByOwner(t *testing.T) {
	m := NewAlertMonitor(knownIDs("BTCUSDT"))
	_, _ = m.Create("BTCUSDT", decimal.NewFromInt(1), models.CompareAbove, "a")
	_, _ = m.Create("BTCUSDT", decimal.NewFromInt(2), models.CompareAbove, "b")
	_, _ = m.Create("BTCUSDT", decimal.NewFromInt(3), models.CompareBelow, "a")

	assert.Len(t, m.List("a"), 2)
	assert.Len(t, m.List(""), 3)

	m.Forget("BTCUSDT")
	assert.Empty(t, m.List(""))
	_, err := m.Create("BTCUSDT", decimal.NewFromInt(1), models.CompareAbove, "a")
	assert.ErrorIs(t, err, models.ErrUnknownInstrument)
}
