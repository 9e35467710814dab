package repository

import (
	"context"

	"SignalPulse/internal/domain/models"
	"SignalPulse/internal/domain/repository"
	pkgkafka "SignalPulse/pkg/kafka"
)

type eventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaEventPublisher writes dispatcher events to one topic, keyed by
// instrument so events of an instrument stay ordered within a partition.
type KafkaEventPublisher struct {
	producer eventProducer
	topic    string
}

func NewKafkaEventPublisher(producer eventProducer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, ev models.Event) error {
	return p.producer.Publish(ctx, p.topic, eventKey(ev), ev)
}

func (p *KafkaEventPublisher) PublishBatch(ctx context.Context, evs []models.Event) error {
	if len(evs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(evs))
	for i, ev := range evs {
		msgs[i] = pkgkafka.Message{Key: eventKey(ev), Value: ev}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func eventKey(ev models.Event) []byte {
	if ev.InstrumentID == "" {
		return []byte(ev.Kind)
	}
	return []byte(ev.InstrumentID)
}

var _ repository.EventPublisher = (*KafkaEventPublisher)(nil)
