package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
instruments:
  - id: BTCUSDT
    category: crypto
    source: binance
    fallback: coingecko
    symbols:
      coingecko: bitcoin
sources:
  - name: binance
    kind: binance
  - name: coingecko
    kind: coingecko
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 200, c.Engine.WindowSize)
	assert.Equal(t, 5*time.Second, c.Engine.EvaluationInterval)
	assert.Equal(t, 80.0, c.Engine.ConfidenceThreshold)
	assert.Equal(t, 70.0, c.Engine.StabilityThreshold)
	assert.Equal(t, 5*time.Minute, c.Engine.Lock.Min)
	assert.Equal(t, 30*time.Minute, c.Engine.Lock.Max)
	assert.Equal(t, 2.0, c.Risk.Crypto.StopLossPct)
	assert.Equal(t, 6.0, c.Risk.Forex.TakeProfitPct)
	assert.Equal(t, 0.01, c.Learning.WeightFloor)
	assert.Equal(t, "BTCUSDT", c.Instruments[0].Name)
	assert.Equal(t, int32(4), c.Instruments[0].Precision)
	assert.Equal(t, 10*time.Second, c.Sources[0].PollInterval)
	assert.Equal(t, "memory", c.WeightsStore.Type)
	assert.Equal(t, "memory", c.Journal.Backend)
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no instruments", `
sources:
  - name: binance
    kind: binance
`},
		{"unknown source", `
instruments:
  - id: XAUUSD
    category: metal
    source: twelvedata
sources:
  - name: binance
    kind: binance
`},
		{"missing api key", `
instruments:
  - id: XAUUSD
    category: metal
    source: td
sources:
  - name: td
    kind: twelvedata
`},
		{"duplicate instrument", `
instruments:
  - id: BTCUSDT
    category: crypto
    source: binance
  - id: BTCUSDT
    category: crypto
    source: binance
sources:
  - name: binance
    kind: binance
`},
		{"bad category", `
instruments:
  - id: BTCUSDT
    category: stocks
    source: binance
sources:
  - name: binance
    kind: binance
`},
		{"inverted lock bounds", minimal + `
engine:
  lock:
    min: 40m
    max: 30m
`},
		{"kafka journal without brokers", minimal + `
journal:
  backend: kafka
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	env := map[string]string{
		"LOG_LEVEL":            "DEBUG",
		"HTTP_PORT":            "9090",
		"KAFKA_BROKERS":        "k1:9092, k2:9092",
		"EVAL_INTERVAL":        "7s",
		"CONFIDENCE_THRESHOLD": "85",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 7*time.Second, c.Engine.EvaluationInterval)
	assert.Equal(t, 85.0, c.Engine.ConfidenceThreshold)
	require.NoError(t, c.Validate())
}

func TestLoadShippedConfig(t *testing.T) {
	path := filepath.Join("..", "..", "config", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skip("sample config not present")
	}
	c, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, c.Instruments)

	src, ok := c.Source(c.Instruments[0].Source)
	assert.True(t, ok)
	assert.NotEmpty(t, src.Kind)
}
