package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablesLoadOncePerTTL(t *testing.T) {
	tb := NewTables(time.Minute)
	var loads atomic.Int32
	load := func() (interface{}, error) {
		loads.Add(1)
		time.Sleep(5 * time.Millisecond)
		return map[string]float64{"EUR": 0.92}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := tb.Get("USD", load)
			assert.NoError(t, err)
			assert.Equal(t, 0.92, v.(map[string]float64)["EUR"])
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, 1, tb.Len())

	tb.Invalidate("USD")
	_, err := tb.Get("USD", load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestTablesErrorsAreNotCached(t *testing.T) {
	tb := NewTables(time.Minute)
	_, err := tb.Get("k", func() (interface{}, error) { return nil, errors.New("boom") })
	require.Error(t, err)
	v, err := tb.Get("k", func() (interface{}, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestTablesDisabled(t *testing.T) {
	tb := NewTables(0)
	n := 0
	for i := 0; i < 3; i++ {
		_, _ = tb.Get("k", func() (interface{}, error) { n++; return n, nil })
	}
	assert.Equal(t, 3, n)
}
