package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	lastPrice     *prometheus.GaugeVec
	fetches       *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	signals       *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	weights       *prometheus.GaugeVec
	sourceHealthy *prometheus.GaugeVec
	drops         *prometheus.CounterVec
}

// New registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalpulse_last_price",
			Help: "Last accepted price per instrument",
		}, []string{"instrument"}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalpulse_source_fetches_total",
			Help: "Source fetch attempts by result",
		}, []string{"source", "result"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalpulse_errors_total",
			Help: "Errors by kind",
		}, []string{"kind"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalpulse_operation_duration_seconds",
			Help:    "Duration of engine operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalpulse_signals_total",
			Help: "Emitted trading signals",
		}, []string{"instrument", "direction"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalpulse_outcomes_total",
			Help: "Classified signal outcomes",
		}, []string{"instrument", "classification"}),
		weights: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalpulse_indicator_weight",
			Help: "Current adaptive indicator weight",
		}, []string{"indicator"}),
		sourceHealthy: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalpulse_source_healthy",
			Help: "1 when the source is healthy, 0 when degraded",
		}, []string{"source"}),
		drops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalpulse_dispatch_dropped_total",
			Help: "Events dropped from full subscriber queues",
		}, []string{"kind"}),
	}
}

func (r *Recorder) RecordPrice(instrument string, price float64) {
	r.lastPrice.WithLabelValues(instrument).Set(price)
}

func (r *Recorder) RecordFetch(source, result string) {
	r.fetches.WithLabelValues(source, result).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency observes seconds for op.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordSignal(instrument, direction string) {
	r.signals.WithLabelValues(instrument, direction).Inc()
}

func (r *Recorder) RecordOutcome(instrument, classification string) {
	r.outcomes.WithLabelValues(instrument, classification).Inc()
}

func (r *Recorder) SetWeight(indicator string, weight float64) {
	r.weights.WithLabelValues(indicator).Set(weight)
}

func (r *Recorder) SetSourceHealth(source string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	r.sourceHealthy.WithLabelValues(source).Set(v)
}

func (r *Recorder) RecordDispatchDrop(kind string) {
	r.drops.WithLabelValues(kind).Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordPrice(string, float64)    {}
func (Nop) RecordFetch(string, string)     {}
func (Nop) RecordError(string)             {}
func (Nop) RecordLatency(string, float64)  {}
func (Nop) RecordSignal(string, string)    {}
func (Nop) RecordOutcome(string, string)   {}
func (Nop) SetWeight(string, float64)      {}
func (Nop) SetSourceHealth(string, bool)   {}
func (Nop) RecordDispatchDrop(string)      {}
