package usecase

import (
	"sort"
	"sync"
	"time"

	"SignalPulse/internal/domain/models"
	drepo "SignalPulse/internal/domain/repository"
	"SignalPulse/pkg/logger"
)

// HealthListener is told when a source flips between healthy and degraded.
type HealthListener func(source string, state models.HealthState)

// SourceMonitor tracks fetch outcomes per source. A source is degraded after
// degradedAfter consecutive failures; an instrument is offline once every
// source it depends on is degraded.
type SourceMonitor struct {
	degradedAfter int
	metrics       drepo.Metrics
	log           *logger.Logger
	now           func() time.Time

	mu          sync.RWMutex
	sources     map[string]*models.SourceHealth
	instruments map[string]models.Instrument
	listeners   []HealthListener
}

type MonitorOption func(*SourceMonitor)

func WithHealthListener(l HealthListener) MonitorOption {
	return func(m *SourceMonitor) { m.listeners = append(m.listeners, l) }
}

func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *SourceMonitor) { m.now = now }
}

func NewSourceMonitor(sources []string, instruments []models.Instrument, degradedAfter int,
	metrics drepo.Metrics, log *logger.Logger, opts ...MonitorOption) *SourceMonitor {
	if degradedAfter < 1 {
		degradedAfter = 1
	}
	m := &SourceMonitor{
		degradedAfter: degradedAfter,
		metrics:       metrics,
		log:           log,
		now:           time.Now,
		sources:       make(map[string]*models.SourceHealth, len(sources)),
		instruments:   make(map[string]models.Instrument, len(instruments)),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, s := range sources {
		m.sources[s] = &models.SourceHealth{Name: s, State: models.SourceHealthy}
		metrics.SetSourceHealth(s, true)
	}
	for _, in := range instruments {
		m.instruments[in.ID] = in
	}
	return m
}

// AddListener registers l for health changes from now on.
func (m *SourceMonitor) AddListener(l HealthListener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

func (m *SourceMonitor) RecordSuccess(source string) {
	m.mu.Lock()
	h, ok := m.sources[source]
	if !ok {
		m.mu.Unlock()
		return
	}
	h.Successes++
	h.ConsecutiveFailures = 0
	h.RateLimited = false
	h.LastSuccess = m.now()
	h.LastError = ""
	h.SuccessRate = successRate(h)
	recovered := h.State == models.SourceDegraded
	h.State = models.SourceHealthy
	m.mu.Unlock()

	m.metrics.RecordFetch(source, "ok")
	if recovered {
		m.log.Info("source recovered", logger.String("source", source))
		m.notify(source, models.SourceHealthy)
	}
}

func (m *SourceMonitor) RecordFailure(source string, err error) {
	rateLimited := models.IsRateLimit(err)

	m.mu.Lock()
	h, ok := m.sources[source]
	if !ok {
		m.mu.Unlock()
		return
	}
	h.Failures++
	h.ConsecutiveFailures++
	h.RateLimited = rateLimited
	if err != nil {
		h.LastError = err.Error()
	}
	h.SuccessRate = successRate(h)
	degraded := h.State == models.SourceHealthy && h.ConsecutiveFailures >= m.degradedAfter
	if degraded {
		h.State = models.SourceDegraded
	}
	streak := h.ConsecutiveFailures
	m.mu.Unlock()

	if rateLimited {
		m.metrics.RecordFetch(source, "rate_limited")
	} else {
		m.metrics.RecordFetch(source, "error")
	}
	if degraded {
		m.log.Warn("source degraded",
			logger.String("source", source),
			logger.Int("consecutive_failures", streak),
			logger.Error(err))
		m.notify(source, models.SourceDegraded)
	}
}

// SetNextDelay records the scheduler's next poll delay for reporting.
func (m *SourceMonitor) SetNextDelay(source string, d time.Duration) {
	m.mu.Lock()
	if h, ok := m.sources[source]; ok {
		h.NextDelay = d
	}
	m.mu.Unlock()
}

func (m *SourceMonitor) IsDegraded(source string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.sources[source]
	return ok && h.State == models.SourceDegraded
}

// InstrumentOffline reports whether every source feeding id is degraded.
func (m *SourceMonitor) InstrumentOffline(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.instruments[id]
	if !ok {
		return false
	}
	return m.offlineLocked(in)
}

func (m *SourceMonitor) offlineLocked(in models.Instrument) bool {
	for _, s := range in.Sources() {
		if h, ok := m.sources[s]; !ok || h.State != models.SourceDegraded {
			return false
		}
	}
	return true
}

// RemoveInstrument stops reporting on id.
func (m *SourceMonitor) RemoveInstrument(id string) {
	m.mu.Lock()
	delete(m.instruments, id)
	m.mu.Unlock()
}

// Status builds the system_status payload.
func (m *SourceMonitor) Status(analyzing []string) models.SystemStatus {
	m.mu.RLock()
	st := models.SystemStatus{
		Sources:              make([]models.SourceHealth, 0, len(m.sources)),
		OfflineInstruments:   []string{},
		AnalyzingInstruments: append([]string{}, analyzing...),
		Timestamp:            m.now(),
	}
	degraded := 0
	for _, h := range m.sources {
		st.Sources = append(st.Sources, *h)
		if h.State == models.SourceDegraded {
			degraded++
		}
	}
	for id, in := range m.instruments {
		if m.offlineLocked(in) {
			st.OfflineInstruments = append(st.OfflineInstruments, id)
		}
	}
	m.mu.RUnlock()

	sort.Slice(st.Sources, func(i, j int) bool { return st.Sources[i].Name < st.Sources[j].Name })
	sort.Strings(st.OfflineInstruments)
	sort.Strings(st.AnalyzingInstruments)

	switch {
	case len(st.Sources) > 0 && degraded == len(st.Sources):
		st.Mode = models.ModeOffline
	case degraded > 0:
		st.Mode = models.ModeDegraded
	default:
		st.Mode = models.ModeHealthy
	}
	st.OfflineMode = len(st.OfflineInstruments) > 0
	return st
}

func (m *SourceMonitor) notify(source string, state models.HealthState) {
	m.metrics.SetSourceHealth(source, state == models.SourceHealthy)
	m.mu.RLock()
	listeners := m.listeners
	m.mu.RUnlock()
	for _, l := range listeners {
		l(source, state)
	}
}

func successRate(h *models.SourceHealth) float64 {
	total := h.Successes + h.Failures
	if total == 0 {
		return 0
	}
	return float64(h.Successes) / float64(total) * 100
}
