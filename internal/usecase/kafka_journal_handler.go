package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	pkgkafka "SignalPulse/pkg/kafka"
)

// KafkaJournalHandler consumes forwarded events and writes signals and
// outcomes to the journal.
type KafkaJournalHandler struct {
	topic   string
	journal domrepo.Journal
	metrics domrepo.Metrics
}

func NewKafkaJournalHandler(topic string, journal domrepo.Journal, metrics domrepo.Metrics) *KafkaJournalHandler {
	return &KafkaJournalHandler{topic: topic, journal: journal, metrics: metrics}
}

func (h *KafkaJournalHandler) Topic() string { return h.topic }

// incoming message schema: {kind, timestamp, instrument_id, payload}
func (h *KafkaJournalHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Kind         models.EventKind `json:"kind"`
		Timestamp    time.Time        `json:"timestamp"`
		InstrumentID string           `json:"instrument_id"`
		Payload      json.RawMessage  `json:"payload"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if !m.Timestamp.IsZero() {
		h.metrics.RecordLatency("journal_e2e", time.Since(m.Timestamp).Seconds())
	}

	ev := models.Event{Kind: m.Kind, Timestamp: m.Timestamp, InstrumentID: m.InstrumentID}
	switch m.Kind {
	case models.EventTradingSignal:
		var s models.Signal
		if err := json.Unmarshal(m.Payload, &s); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return fmt.Errorf("decode signal: %w", err)
		}
		ev.Payload = s
	case models.EventSignalOutcome:
		var r models.OutcomeRecord
		if err := json.Unmarshal(m.Payload, &r); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return fmt.Errorf("decode outcome: %w", err)
		}
		ev.Payload = r
	default:
		return nil
	}

	start := time.Now()
	err := storeJournal(ctx, h.journal, ev)
	h.metrics.RecordLatency("journal_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaJournalHandler)(nil)
