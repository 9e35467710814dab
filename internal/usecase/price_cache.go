package usecase

import (
	"fmt"
	"sync"

	"SignalPulse/internal/domain/models"
)

// SampleListener observes every accepted sample, in order per instrument.
type SampleListener func(models.PriceSample)

// PriceCache keeps a bounded, time-ordered window of samples per instrument.
// Each instrument is guarded by its own mutex.
type PriceCache struct {
	size int

	mu        sync.RWMutex
	series    map[string]*series
	listeners []SampleListener
}

type series struct {
	order sync.Mutex // serializes record+notify
	mu    sync.RWMutex
	buf   []models.PriceSample
}

type CacheOption func(*PriceCache)

// WithListener adds a callback run after each successful Record. Listeners may
// read the cache but must not Record into it.
func WithListener(l SampleListener) CacheOption {
	return func(c *PriceCache) { c.listeners = append(c.listeners, l) }
}

// AddListener registers l for samples recorded from now on.
func (c *PriceCache) AddListener(l SampleListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

func NewPriceCache(size int, instruments []string, opts ...CacheOption) *PriceCache {
	if size <= 0 {
		size = 200
	}
	c := &PriceCache{size: size, series: make(map[string]*series, len(instruments))}
	for _, id := range instruments {
		c.series[id] = &series{buf: make([]models.PriceSample, 0, size)}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *PriceCache) get(id string) (*series, bool) {
	c.mu.RLock()
	s, ok := c.series[id]
	c.mu.RUnlock()
	return s, ok
}

// Record appends s, evicting the oldest sample once the window is full.
// Samples older than the newest recorded one fail with StaleTimestampError.
func (c *PriceCache) Record(s models.PriceSample) error {
	sr, ok := c.get(s.InstrumentID)
	if !ok {
		return fmt.Errorf("record %s: %w", s.InstrumentID, models.ErrUnknownInstrument)
	}

	sr.order.Lock()
	defer sr.order.Unlock()

	sr.mu.Lock()
	if n := len(sr.buf); n > 0 && s.Timestamp.Before(sr.buf[n-1].Timestamp) {
		newest := sr.buf[n-1].Timestamp
		sr.mu.Unlock()
		return &models.StaleTimestampError{Instrument: s.InstrumentID, Timestamp: s.Timestamp, Newest: newest}
	}
	if len(sr.buf) == c.size {
		copy(sr.buf, sr.buf[1:])
		sr.buf = sr.buf[:c.size-1]
	}
	sr.buf = append(sr.buf, s)
	sr.mu.Unlock()

	c.mu.RLock()
	listeners := c.listeners
	c.mu.RUnlock()
	for _, l := range listeners {
		l(s)
	}
	return nil
}

// Latest returns the newest sample or ErrNoData.
func (c *PriceCache) Latest(id string) (models.PriceSample, error) {
	sr, ok := c.get(id)
	if !ok {
		return models.PriceSample{}, fmt.Errorf("latest %s: %w", id, models.ErrUnknownInstrument)
	}
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	if len(sr.buf) == 0 {
		return models.PriceSample{}, fmt.Errorf("latest %s: %w", id, models.ErrNoData)
	}
	return sr.buf[len(sr.buf)-1], nil
}

// Window returns up to the last n samples, oldest first.
func (c *PriceCache) Window(id string, n int) []models.PriceSample {
	sr, ok := c.get(id)
	if !ok || n <= 0 {
		return nil
	}
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	if n > len(sr.buf) {
		n = len(sr.buf)
	}
	out := make([]models.PriceSample, n)
	copy(out, sr.buf[len(sr.buf)-n:])
	return out
}

// Len reports how many samples are held for id.
func (c *PriceCache) Len(id string) int {
	sr, ok := c.get(id)
	if !ok {
		return 0
	}
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return len(sr.buf)
}

// Size is the configured window capacity.
func (c *PriceCache) Size() int { return c.size }

// Remove drops all state for id.
func (c *PriceCache) Remove(id string) {
	c.mu.Lock()
	delete(c.series, id)
	c.mu.Unlock()
}
