package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"SignalPulse/pkg/logger"
)

// MessageHandler handles records from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type ConsumerOption func(*ConsumerConfig)

type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Logger      *logger.Logger
	Registerer  prometheus.Registerer
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if count > 0 {
			c.WorkerCount = count
		}
	}
}

// WithConsumerRetry configures handler retries and their backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ routes records that still fail after retries to topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerLogger(log *logger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) { c.Logger = log }
}

func WithConsumerRegisterer(reg prometheus.Registerer) ConsumerOption {
	return func(c *ConsumerConfig) { c.Registerer = reg }
}

// Consumer reads registered topics and hands records to a worker pool.
// Records of one partition are handled one at a time.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *logger.Logger
	metrics  *consumerMetrics
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	msgs     chan kafka.Message
	dlq      *kafka.Writer

	ctx    context.Context
	cancel context.CancelFunc
	readWg sync.WaitGroup
	workWg sync.WaitGroup
	once   sync.Once

	lockMu    sync.Mutex
	partLocks map[string]*sync.Mutex
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "signalpulse",
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:       cfg,
		log:       cfg.Logger,
		metrics:   sharedConsumerMetrics(cfg.Registerer),
		readers:   make(map[string]*kafka.Reader),
		handlers:  make(map[string]MessageHandler),
		msgs:      make(chan kafka.Message, cfg.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
		partLocks: make(map[string]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// RegisterHandler must be called before Start. A second handler for the
// same topic is ignored.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	if _, ok := c.handlers[h.Topic()]; ok {
		c.log.Warn("kafka handler already registered", logger.String("topic", h.Topic()))
		return
	}
	c.handlers[h.Topic()] = h
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWg.Add(1)
		go c.worker()
	}
	for topic, r := range c.readers {
		c.readWg.Add(1)
		go c.read(topic, r)
	}
	c.log.Info("kafka consumer started",
		logger.String("group", c.cfg.GroupID),
		logger.Int("workers", c.cfg.WorkerCount),
		logger.Int("topics", len(c.readers)))
	return nil
}

// Stop ends reading, drains queued records and closes readers. It returns
// early with an error when ctx expires first.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		c.cancel()
		c.readWg.Wait()
		close(c.msgs)

		done := make(chan struct{})
		go func() {
			c.workWg.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer stop: %w", ctx.Err())
		case <-done:
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("close kafka reader", logger.String("topic", topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			_ = c.dlq.Close()
		}
	})
	return err
}

func (c *Consumer) read(topic string, r *kafka.Reader) {
	defer c.readWg.Done()
	for {
		m, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warn("kafka fetch", logger.String("topic", topic), logger.Error(err))
			if !sleepCtx(c.ctx, c.cfg.BackoffMax) {
				return
			}
			continue
		}
		select {
		case c.msgs <- m:
			c.metrics.depth.WithLabelValues(topic).Set(float64(len(c.msgs)))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) worker() {
	defer c.workWg.Done()
	for m := range c.msgs {
		c.process(m)
	}
}

func (c *Consumer) process(m kafka.Message) {
	h, ok := c.handlers[m.Topic]
	if !ok {
		return
	}
	start := time.Now()
	pl := c.partitionLock(m.Topic, m.Partition)
	pl.Lock()
	defer pl.Unlock()

	err := c.handleWithRetry(h, m.Value)
	result := "ok"
	if err != nil {
		result = "error"
		c.log.Error("kafka handler failed",
			logger.String("topic", m.Topic),
			logger.Int64("offset", m.Offset),
			logger.Error(err))
		if c.dlq != nil {
			result = "dlq"
			if derr := c.dlq.WriteMessages(context.Background(), kafka.Message{
				Topic:   c.cfg.DLQTopic,
				Key:     m.Key,
				Value:   m.Value,
				Time:    time.Now(),
				Headers: []kafka.Header{{Key: "source_topic", Value: []byte(m.Topic)}},
			}); derr != nil {
				c.log.Error("kafka dlq write", logger.String("topic", c.cfg.DLQTopic), logger.Error(derr))
			}
		}
	}
	// Commit on success, or after a DLQ hand-off so a poison record cannot loop.
	if err == nil || c.dlq != nil {
		c.commit(m)
	}
	c.metrics.handled.WithLabelValues(m.Topic, result).Inc()
	c.metrics.latency.WithLabelValues(m.Topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) handleWithRetry(h MessageHandler, data []byte) error {
	var err error
	for attempt := 1; ; attempt++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			err = h.Handle(context.Background(), data)
		}()
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		if !sleepCtx(c.ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return errors.Join(err, c.ctx.Err())
		}
	}
}

func (c *Consumer) commit(m kafka.Message) {
	r := c.readers[m.Topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, m)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("kafka commit", logger.String("topic", m.Topic), logger.Int64("offset", m.Offset), logger.Error(err))
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", topic, partition)
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	l, ok := c.partLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[key] = l
	}
	return l
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoffWithJitter doubles min per attempt up to max and subtracts up to
// half of it at random.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt <= 30 {
		if e := min << uint(attempt-1); e > 0 && e < max {
			exp = e
		}
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int64N(half))
}

type consumerMetrics struct {
	depth   *prometheus.GaugeVec
	handled *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var (
	consumerMu  sync.Mutex
	consumerReg = map[prometheus.Registerer]*consumerMetrics{}
)

func sharedConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	consumerMu.Lock()
	defer consumerMu.Unlock()
	if m, ok := consumerReg[reg]; ok {
		return m
	}
	f := promauto.With(reg)
	m := &consumerMetrics{
		depth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalpulse_kafka_consumer_queue_depth",
			Help: "Records waiting for a worker",
		}, []string{"topic"}),
		handled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalpulse_kafka_consumer_records_total",
			Help: "Handled records by result",
		}, []string{"topic", "result"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "signalpulse_kafka_consumer_handle_seconds",
			Help: "Handling time per record",
		}, []string{"topic"}),
	}
	consumerReg[reg] = m
	return m
}
