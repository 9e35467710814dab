package usecase

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SignalPulse/internal/domain/models"
)

// AlertMonitor evaluates price alert subscriptions. An alert fires once when
// its condition becomes true and re-arms after the condition turns false.
type AlertMonitor struct {
	known func(instrument string) bool
	now   func() time.Time

	mu      sync.Mutex
	subs    map[string]*alertState
	removed map[string]bool
}

type alertState struct {
	sub       models.AlertSubscription
	satisfied *bool // nil until the first observed price
}

func NewAlertMonitor(known func(instrument string) bool) *AlertMonitor {
	return &AlertMonitor{
		known:   known,
		now:     time.Now,
		subs:    make(map[string]*alertState),
		removed: make(map[string]bool),
	}
}

// Create registers a new enabled subscription.
func (m *AlertMonitor) Create(instrument string, threshold decimal.Decimal, cmp models.Comparison, owner string) (models.AlertSubscription, error) {
	m.mu.Lock()
	removed := m.removed[instrument]
	m.mu.Unlock()
	if removed || (m.known != nil && !m.known(instrument)) {
		return models.AlertSubscription{}, fmt.Errorf("alert on %s: %w", instrument, models.ErrUnknownInstrument)
	}
	if cmp != models.CompareAbove && cmp != models.CompareBelow {
		return models.AlertSubscription{}, fmt.Errorf("alert comparison %q not supported", cmp)
	}
	sub := models.AlertSubscription{
		ID:           uuid.NewString(),
		InstrumentID: instrument,
		Threshold:    threshold,
		Comparison:   cmp,
		Owner:        owner,
		Enabled:      true,
		CreatedAt:    m.now(),
	}
	m.mu.Lock()
	m.subs[sub.ID] = &alertState{sub: sub}
	m.mu.Unlock()
	return sub, nil
}

// List returns subscriptions of owner, or all when owner is empty, oldest first.
func (m *AlertMonitor) List(owner string) []models.AlertSubscription {
	m.mu.Lock()
	out := make([]models.AlertSubscription, 0, len(m.subs))
	for _, st := range m.subs {
		if owner == "" || st.sub.Owner == owner {
			out = append(out, st.sub)
		}
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// owned looks up id on behalf of owner; another owner's subscription reads as
// absent. Callers hold mu.
func (m *AlertMonitor) owned(id, owner string) (*alertState, bool) {
	st, ok := m.subs[id]
	if !ok || st.sub.Owner != owner {
		return nil, false
	}
	return st, true
}

// Delete removes subscription id of owner.
func (m *AlertMonitor) Delete(id, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.owned(id, owner); !ok {
		return models.ErrAlertNotFound
	}
	delete(m.subs, id)
	return nil
}

// SetEnabled toggles subscription id of owner. Re-enabling re-arms it.
func (m *AlertMonitor) SetEnabled(id, owner string, enabled bool) (models.AlertSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.owned(id, owner)
	if !ok {
		return models.AlertSubscription{}, models.ErrAlertNotFound
	}
	if enabled && !st.sub.Enabled {
		st.satisfied = nil
	}
	st.sub.Enabled = enabled
	return st.sub, nil
}

// WatchedInstruments lists the instruments of owner's enabled subscriptions.
func (m *AlertMonitor) WatchedInstruments(owner string) []string {
	m.mu.Lock()
	seen := make(map[string]bool)
	for _, st := range m.subs {
		if st.sub.Enabled && st.sub.Owner == owner {
			seen[st.sub.InstrumentID] = true
		}
	}
	m.mu.Unlock()
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Observe returns the alerts that s makes fire.
func (m *AlertMonitor) Observe(s models.PriceSample) []models.AlertTrigger {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.AlertTrigger
	for _, st := range m.subs {
		if !st.sub.Enabled || st.sub.InstrumentID != s.InstrumentID {
			continue
		}
		now := st.sub.Satisfied(s.Price)
		was := st.satisfied != nil && *st.satisfied
		st.satisfied = &now
		if now && !was {
			out = append(out, models.AlertTrigger{
				SubscriptionID: st.sub.ID,
				InstrumentID:   s.InstrumentID,
				Price:          s.Price,
				Threshold:      st.sub.Threshold,
				Comparison:     st.sub.Comparison,
				Owner:          st.sub.Owner,
				TriggeredAt:    s.Timestamp,
			})
		}
	}
	return out
}

// Forget removes every subscription on instrument and refuses new ones.
func (m *AlertMonitor) Forget(instrument string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed[instrument] = true
	for id, st := range m.subs {
		if st.sub.InstrumentID == instrument {
			delete(m.subs, id)
		}
	}
}
