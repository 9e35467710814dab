package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Tables memoizes whole provider responses (a rate table, a multi-id price
// map) so one upstream call serves every instrument polled in the same cycle.
type Tables struct {
	ttl time.Duration
	c   *gocache.Cache

	mu    sync.Mutex
	loads map[string]*sync.Mutex
}

// NewTables creates a table cache. A ttl <= 0 disables caching.
func NewTables(ttl time.Duration) *Tables {
	cleanup := 2 * ttl
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &Tables{ttl: ttl, c: gocache.New(ttl, cleanup), loads: make(map[string]*sync.Mutex)}
}

// Get returns the cached table for key or calls load once to fill it.
// Concurrent callers for the same key wait for the first load.
func (t *Tables) Get(key string, load func() (interface{}, error)) (interface{}, error) {
	if t.ttl <= 0 {
		return load()
	}
	if v, ok := t.c.Get(key); ok {
		return v, nil
	}

	l := t.keyLock(key)
	l.Lock()
	defer l.Unlock()
	if v, ok := t.c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return nil, err
	}
	t.c.Set(key, v, gocache.DefaultExpiration)
	return v, nil
}

// Invalidate drops key so the next Get reloads it.
func (t *Tables) Invalidate(key string) {
	t.c.Delete(key)
}

func (t *Tables) Len() int { return t.c.ItemCount() }

func (t *Tables) keyLock(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.loads[key]
	if !ok {
		l = &sync.Mutex{}
		t.loads[key] = l
	}
	return l
}
