package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"

	"SignalPulse/internal/domain/models"
	drepo "SignalPulse/internal/domain/repository"
	"SignalPulse/internal/handler/api"
	"SignalPulse/internal/middleware"
	"SignalPulse/internal/repository"
	"SignalPulse/internal/service/dispatcher"
	"SignalPulse/internal/service/ratelimit"
	"SignalPulse/internal/service/sources"
	"SignalPulse/internal/services/indicators"
	"SignalPulse/internal/usecase"
	"SignalPulse/pkg/cache"
	pkgch "SignalPulse/pkg/clickhouse"
	"SignalPulse/pkg/config"
	xhttp "SignalPulse/pkg/http"
	pkgkafka "SignalPulse/pkg/kafka"
	"SignalPulse/pkg/logger"
	"SignalPulse/pkg/metrics"
	"SignalPulse/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideRegistry creates the process registry with Go runtime collectors.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) drepo.Metrics {
	return metrics.New(reg)
}

// ProvideKafkaProducer returns nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithMaxAttempts(k.Producer.MaxAttempts),
		pkgkafka.WithBatch(k.Producer.BatchSize, k.Producer.Linger),
		pkgkafka.WithTimeouts(k.Producer.WriteTimeout, k.Producer.ReadTimeout),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the root logger. With log.collect set, aggregated
// entries are shipped through the Kafka producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, func(), error) {
	l, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	l = l.With(logger.String("env", cfg.Environment))
	if !cfg.Log.Collect || producer == nil {
		return l, func() {}, nil
	}
	l.AttachCollector(&logger.CollectionConfig{
		FlushInterval:  cfg.Log.FlushEvery,
		CountThreshold: 500,
		Topic:          cfg.Log.Topic,
		Publisher:      producer,
	})
	return l, l.DetachCollector, nil
}

func needsClickHouse(cfg *config.Config) bool {
	return cfg.Journal.Backend == "clickhouse" || cfg.Journal.Consume
}

// ProvideClickHouseClient returns nil unless the journal lives in ClickHouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !needsClickHouse(cfg) {
		return nil, func() {}, nil
	}
	c := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithEndpoint(c.Host, c.Port, c.Database),
		pkgch.WithCredentials(c.User, c.Password),
		pkgch.WithPool(10, 5, 0),
		pkgch.WithHTTP(c.UseHTTP),
		pkgch.WithAsyncInsert(c.AsyncInsert, c.WaitForAsync),
		pkgch.WithTimeouts(c.DialTimeout, c.ReadTimeout, c.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideJournal picks the store that serves outcome queries.
func ProvideJournal(cfg *config.Config, ch *pkgch.Client) (drepo.Journal, error) {
	if ch == nil {
		return repository.NewMemoryJournal(cfg.Journal.Capacity), nil
	}
	j := repository.NewClickHouseJournal(ch.DB(), cfg.Journal.TTLDays)
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := j.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse journal schema: %w", err)
	}
	return j, nil
}

func ProvideHub(cfg *config.Config, m drepo.Metrics) *dispatcher.Hub {
	return dispatcher.NewHub(cfg.Dispatcher.QueueSize, m)
}

var journaledKinds = []models.EventKind{models.EventTradingSignal, models.EventSignalOutcome}

// ProvideSinkFeeds subscribes one sink per backend. The kafka backend
// forwards every broadcast event; when nothing consumes the topic locally the
// journal is fed directly as well.
func ProvideSinkFeeds(cfg *config.Config, hub *dispatcher.Hub, journal drepo.Journal, producer *pkgkafka.Producer,
	m drepo.Metrics, log *logger.Logger) []server.SinkFeed {
	j := cfg.Journal
	queue := j.BatchMax * 4
	var feeds []server.SinkFeed
	if j.Backend == "kafka" && producer != nil {
		pub := repository.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
		sink := usecase.NewEventSink(pub, nil, m, log, usecase.SinkKafka, j.BatchMax, j.Flush)
		feeds = append(feeds, server.SinkFeed{Sink: sink, Events: hub.SubscribeSized(dispatcher.Filter{}, queue).Events()})
		if j.Consume {
			return feeds
		}
	}
	sink := usecase.NewEventSink(nil, journal, m, log, usecase.SinkJournal, j.BatchMax, j.Flush)
	sub := hub.SubscribeSized(dispatcher.Filter{Kinds: journaledKinds}, queue)
	return append(feeds, server.SinkFeed{Sink: sink, Events: sub.Events()})
}

// ProvideJournalConsumer returns nil unless journal.consume is set.
func ProvideJournalConsumer(cfg *config.Config, journal drepo.Journal, m drepo.Metrics, log *logger.Logger,
	reg *prometheus.Registry) (*pkgkafka.Consumer, error) {
	if !cfg.Journal.Consume {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerLogger(log),
		pkgkafka.WithConsumerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaJournalHandler(cfg.Kafka.Topic, journal, m))
	return consumer, nil
}

// ProvideWeightStore returns nil for the memory store.
func ProvideWeightStore(cfg *config.Config) (drepo.WeightStore, func(), error) {
	switch cfg.WeightsStore.Type {
	case "redis":
		rc, err := cache.NewRedisCache(cache.WithRedisEndpoint(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB))
		if err != nil {
			return nil, nil, fmt.Errorf("weights redis: %w", err)
		}
		s := repository.NewRedisWeightStore(rc, cfg.WeightsStore.Key)
		return s, func() { _ = s.Close() }, nil
	case "sqlite":
		s, err := repository.NewSQLiteWeightStore(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("weights sqlite: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

// ProvideAdaptiveWeights restores the last checkpoint when a store is set.
func ProvideAdaptiveWeights(cfg *config.Config, store drepo.WeightStore, m drepo.Metrics,
	log *logger.Logger) (*usecase.AdaptiveWeights, error) {
	l := cfg.Learning
	initial := make(map[models.IndicatorName]float64, len(l.InitialWeights))
	for name, w := range l.InitialWeights {
		initial[models.IndicatorName(name)] = w
	}
	var opts []usecase.WeightsOption
	if store != nil {
		opts = append(opts, usecase.WithWeightStore(store))
	}
	w := usecase.NewAdaptiveWeights(usecase.LearningParams{
		LearningRate:  l.LearningRate,
		Floor:         l.WeightFloor,
		ThresholdStep: l.ThresholdStep,
		ThresholdMin:  l.ThresholdMin,
		ThresholdMax:  l.ThresholdMax,
	}, initial, cfg.Engine.ConfidenceThreshold, m, log.With(logger.String("component", "weights")), opts...)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := w.Load(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func ProvideInstruments(cfg *config.Config) []models.Instrument {
	out := make([]models.Instrument, 0, len(cfg.Instruments))
	for _, in := range cfg.Instruments {
		out = append(out, models.Instrument{
			ID:        in.ID,
			Name:      in.Name,
			Category:  models.Category(in.Category),
			Source:    in.Source,
			Fallback:  in.Fallback,
			Precision: in.Precision,
			Symbols:   in.Symbols,
		})
	}
	return out
}

func ProvideSourceMonitor(cfg *config.Config, insts []models.Instrument, m drepo.Metrics,
	log *logger.Logger) *usecase.SourceMonitor {
	names := make([]string, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		names = append(names, s.Name)
	}
	return usecase.NewSourceMonitor(names, insts, cfg.Engine.DegradedAfter, m,
		log.With(logger.String("component", "sources")))
}

func riskBands(r config.RiskConfig) map[models.Category]usecase.RiskBand {
	band := func(b config.RiskBand) usecase.RiskBand {
		return usecase.RiskBand{
			StopLossPct:   decimal.NewFromFloat(b.StopLossPct),
			TakeProfitPct: decimal.NewFromFloat(b.TakeProfitPct),
		}
	}
	return map[models.Category]usecase.RiskBand{
		models.CategoryCrypto: band(r.Crypto),
		models.CategoryMetal:  band(r.Metal),
		models.CategoryForex:  band(r.Forex),
	}
}

// ProvideSignalEngine assembles the per-instrument pipeline.
func ProvideSignalEngine(cfg *config.Config, insts []models.Instrument, weights *usecase.AdaptiveWeights,
	monitor *usecase.SourceMonitor, hub *dispatcher.Hub, m drepo.Metrics, log *logger.Logger) *usecase.SignalEngine {
	e, ind := cfg.Engine, cfg.Indicators
	ids := make([]string, 0, len(insts))
	for _, in := range insts {
		ids = append(ids, in.ID)
	}
	priceCache := usecase.NewPriceCache(e.WindowSize, ids)

	var pipeOpts []middleware.PipelineOption
	if e.MinQuoteInterval > 0 {
		pipeOpts = append(pipeOpts, middleware.WithMinInterval(e.MinQuoteInterval))
	}

	var engine *usecase.SignalEngine
	alerts := usecase.NewAlertMonitor(func(id string) bool { return engine.Known(id) })
	engine = usecase.NewSignalEngine(insts, usecase.EngineDeps{
		Cache:    priceCache,
		Pipeline: middleware.NewQuotePipeline(priceCache, m, pipeOpts...),
		Indicators: usecase.NewIndicatorEngine(priceCache, indicators.Params{
			RSIPeriod:        ind.RSIPeriod,
			MACDFast:         ind.MACDFast,
			MACDSlow:         ind.MACDSlow,
			MACDSignal:       ind.MACDSignal,
			BollingerPeriod:  ind.BollingerPeriod,
			BollingerStdDev:  ind.BollingerStdDev,
			StochasticPeriod: ind.StochasticPeriod,
			StochasticSmooth: ind.StochasticSmooth,
			WilliamsPeriod:   ind.WilliamsPeriod,
		}),
		Scorer: usecase.NewConsensusScorer(weights,
			usecase.VoteBands{RSIOversold: ind.RSIOversold, RSIOverbought: ind.RSIOverbought}, e.StabilityCycles),
		Locks: usecase.NewSignalLockManager(usecase.LockPolicy{
			MinDuration:        e.Lock.Min,
			MaxDuration:        e.Lock.Max,
			StabilityThreshold: e.StabilityThreshold,
		}, weights),
		Risk:     usecase.NewRiskCalculator(riskBands(cfg.Risk)),
		Outcomes: usecase.NewOutcomeTracker(e.InconclusiveBand),
		Weights:  weights,
		Alerts:   alerts,
		Monitor:  monitor,
		Bus:      hub,
		Metrics:  m,
		Log:      log.With(logger.String("component", "engine")),
	}, usecase.WithEvalParallelism(e.EvalParallelism))
	return engine
}

func ProvideAlertMonitor(engine *usecase.SignalEngine) *usecase.AlertMonitor {
	return engine.Alerts
}

// ProvidePollSources builds every configured adapter behind its rate limiter.
func ProvidePollSources(cfg *config.Config, insts []models.Instrument, log *logger.Logger) ([]usecase.PollSource, error) {
	out := make([]usecase.PollSource, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		var fed []models.Instrument
		for _, in := range insts {
			if in.DependsOn(sc.Name) {
				fed = append(fed, in)
			}
		}
		src, err := sources.New(sources.Spec{
			Name:     sc.Name,
			Kind:     sc.Kind,
			BaseURL:  sc.BaseURL,
			APIKey:   sc.APIKey,
			Timeout:  sc.Timeout,
			CacheTTL: sc.CacheTTL,
		}, fed, log.With(logger.String("source", sc.Name)))
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		out = append(out, usecase.PollSource{
			Source:       ratelimit.Wrap(src, sc.RateLimit.RPS, sc.RateLimit.Burst),
			PollInterval: sc.PollInterval,
			Timeout:      sc.Timeout,
		})
	}
	return out, nil
}

func ProvideScheduler(cfg *config.Config, polls []usecase.PollSource, engine *usecase.SignalEngine,
	monitor *usecase.SourceMonitor, weights *usecase.AdaptiveWeights, m drepo.Metrics, log *logger.Logger) *usecase.Scheduler {
	e := cfg.Engine
	return usecase.NewScheduler(usecase.SchedulerConfig{
		EvaluationInterval: e.EvaluationInterval,
		OutcomeInterval:    e.OutcomeInterval,
		StatusSchedule:     e.StatusSchedule,
		CheckpointSchedule: cfg.Learning.Checkpoint,
		Backoff: usecase.BackoffPolicy{
			Max:                    e.Backoff.Max,
			RateLimitMultiplier:    e.Backoff.RateLimitMultiplier,
			MaxRateLimitMultiplier: e.Backoff.MaxRateLimitMultiplier,
			Jitter:                 e.Backoff.Jitter,
		},
	}, polls, engine, monitor, weights, m, log.With(logger.String("component", "scheduler")))
}

func ProvideAPIHandler(cfg *config.Config, engine *usecase.SignalEngine, alerts *usecase.AlertMonitor,
	weights *usecase.AdaptiveWeights, journal drepo.Journal, hub *dispatcher.Hub, log *logger.Logger) *api.Handler {
	var opts []api.Option
	if len(cfg.Server.AllowOrigins) > 0 {
		opts = append(opts, api.WithAllowedOrigins(cfg.Server.AllowOrigins))
	}
	return api.NewHandler(engine, alerts, weights, journal, hub, log.With(logger.String("component", "api")), opts...)
}

func ProvideHTTPServer(cfg *config.Config, h *api.Handler, reg *prometheus.Registry, log *logger.Logger) *xhttp.Server {
	s := cfg.Server
	opts := []xhttp.ServerOption{
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
	}
	if len(s.AllowOrigins) > 0 {
		opts = append(opts, xhttp.WithCORS(s.AllowOrigins))
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(reg, cfg.Metrics.Path))
	}
	return xhttp.NewServer(log.With(logger.String("component", "http")), []xhttp.Handler{h}, opts...)
}

func ProvideApp(cfg *config.Config, scheduler *usecase.Scheduler, hub *dispatcher.Hub, feeds []server.SinkFeed,
	consumer *pkgkafka.Consumer, httpServer *xhttp.Server, log *logger.Logger) *server.App {
	return server.New(scheduler, hub, feeds, consumer, httpServer, cfg.Server.ShutdownTimeout, log)
}
