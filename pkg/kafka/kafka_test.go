package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffWithJitter(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, max)
	}
	d := backoffWithJitter(min, max, 1)
	assert.GreaterOrEqual(t, d, min/2)
	assert.LessOrEqual(t, d, min)
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue([]byte("raw"))
	require.NoError(t, err)
	assert.Equal(t, "raw", string(b))

	b, err = encodeValue(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)

	reg := prometheus.NewRegistry()
	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithProducerRegisterer(reg))
	require.NoError(t, err)
	defer p.Close()

	// A second producer on the same registry must not panic on re-registration.
	p2, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithProducerRegisterer(reg))
	require.NoError(t, err)
	assert.Same(t, p.metrics, p2.metrics)
	_ = p2.Close()
}

type countingHandler struct {
	fails int
	calls int
}

func (h *countingHandler) Topic() string { return "t" }

func (h *countingHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.calls <= h.fails {
		return errors.New("boom")
	}
	return nil
}

func TestHandleWithRetry(t *testing.T) {
	c, err := NewConsumer(
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
		WithConsumerRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)

	h := &countingHandler{fails: 2}
	require.NoError(t, c.handleWithRetry(h, nil))
	assert.Equal(t, 3, h.calls)

	h = &countingHandler{fails: 10}
	assert.Error(t, c.handleWithRetry(h, nil))
	assert.Equal(t, 3, h.calls)

	assert.Error(t, c.Start(), "start without handlers")
}

func TestPartitionLockIsStable(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"b"}), WithConsumerRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	assert.Same(t, c.partitionLock("a", 1), c.partitionLock("a", 1))
	assert.NotSame(t, c.partitionLock("a", 1), c.partitionLock("a", 2))
}
