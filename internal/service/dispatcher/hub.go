package dispatcher

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"SignalPulse/internal/domain/models"
	drepo "SignalPulse/internal/domain/repository"
)

// Filter narrows what a subscriber receives. Empty fields match everything.
// Events carrying an owner are only delivered to subscribers with that owner.
type Filter struct {
	Owner       string
	Instruments []string
	Kinds       []models.EventKind
}

// Subscription is one subscriber's bounded event queue. When the queue is
// full the oldest event is dropped so Publish never blocks.
type Subscription struct {
	id          string
	owner       string
	instruments map[string]bool
	kinds       map[models.EventKind]bool

	mu      sync.Mutex
	ch      chan models.Event
	closed  bool
	dropped atomic.Int64
}

func (s *Subscription) ID() string { return s.id }

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan models.Event { return s.ch }

// Dropped counts events discarded for this subscriber.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

func (s *Subscription) matches(ev models.Event) bool {
	if ev.Owner != "" && ev.Owner != s.owner {
		return false
	}
	if len(s.kinds) > 0 && !s.kinds[ev.Kind] {
		return false
	}
	if len(s.instruments) > 0 && ev.InstrumentID != "" && !s.instruments[ev.InstrumentID] {
		return false
	}
	return true
}

// offer enqueues ev, evicting the oldest queued event if needed. It reports
// whether an event was dropped.
func (s *Subscription) offer(ev models.Event) (dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return false
	default:
	}
	select {
	case <-s.ch:
		dropped = true
	default:
	}
	select {
	case s.ch <- ev:
	default:
		dropped = true
	}
	if dropped {
		s.dropped.Add(1)
	}
	return dropped
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub fans events out to subscribers at most once each, best effort.
type Hub struct {
	queueSize int
	metrics   drepo.Metrics

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

func NewHub(queueSize int, metrics drepo.Metrics) *Hub {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Hub{queueSize: queueSize, metrics: metrics, subs: make(map[string]*Subscription)}
}

// Subscribe registers a subscriber. After Close it returns an already closed subscription.
func (h *Hub) Subscribe(f Filter) *Subscription {
	return h.SubscribeSized(f, h.queueSize)
}

// SubscribeSized is Subscribe with a per-subscriber queue length.
func (h *Hub) SubscribeSized(f Filter, queueSize int) *Subscription {
	if queueSize < 1 {
		queueSize = h.queueSize
	}
	s := &Subscription{
		id:    uuid.NewString(),
		owner: f.Owner,
		ch:    make(chan models.Event, queueSize),
	}
	if len(f.Instruments) > 0 {
		s.instruments = make(map[string]bool, len(f.Instruments))
		for _, id := range f.Instruments {
			s.instruments[id] = true
		}
	}
	if len(f.Kinds) > 0 {
		s.kinds = make(map[models.EventKind]bool, len(f.Kinds))
		for _, k := range f.Kinds {
			s.kinds[k] = true
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.close()
		return s
	}
	h.subs[s.id] = s
	return s
}

func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s.id)
	h.mu.Unlock()
	s.close()
}

// Publish never blocks on a subscriber.
func (h *Hub) Publish(ev models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.matches(ev) {
			continue
		}
		if s.offer(ev) {
			h.metrics.RecordDispatchDrop(string(ev.Kind))
		}
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, s := range h.subs {
		s.close()
		delete(h.subs, id)
	}
}

var _ drepo.EventBus = (*Hub)(nil)
