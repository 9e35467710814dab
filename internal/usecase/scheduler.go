package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"SignalPulse/internal/domain/models"
	drepo "SignalPulse/internal/domain/repository"
	"SignalPulse/internal/middleware"
	"SignalPulse/pkg/logger"
)

// PollSource is a quote source with its polling cadence.
type PollSource struct {
	Source       drepo.QuoteSource
	PollInterval time.Duration
	Timeout      time.Duration
}

type SchedulerConfig struct {
	EvaluationInterval time.Duration
	OutcomeInterval    time.Duration
	StatusSchedule     string // cron spec with seconds, empty disables
	CheckpointSchedule string
	Backoff            BackoffPolicy
}

// Scheduler drives one poll loop per source, the evaluation loop and the
// outcome loop, plus cron maintenance jobs.
type Scheduler struct {
	cfg     SchedulerConfig
	sources []PollSource
	engine  *SignalEngine
	monitor *SourceMonitor
	weights *AdaptiveWeights
	metrics drepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewScheduler(cfg SchedulerConfig, sources []PollSource, engine *SignalEngine, monitor *SourceMonitor,
	weights *AdaptiveWeights, metrics drepo.Metrics, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		sources: sources,
		engine:  engine,
		monitor: monitor,
		weights: weights,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// Start blocks until ctx is cancelled or a loop fails.
func (s *Scheduler) Start(ctx context.Context) error {
	started, err := s.startSources(ctx)
	defer s.closeSources(started)
	if err != nil {
		return err
	}

	s.monitor.AddListener(func(string, models.HealthState) { s.engine.PublishStatus() })

	c := cron.New(cron.WithSeconds())
	if s.cfg.StatusSchedule != "" {
		if _, err := c.AddFunc(s.cfg.StatusSchedule, s.engine.PublishStatus); err != nil {
			return fmt.Errorf("status schedule: %w", err)
		}
	}
	if s.cfg.CheckpointSchedule != "" {
		if _, err := c.AddFunc(s.cfg.CheckpointSchedule, func() { s.checkpoint(ctx) }); err != nil {
			return fmt.Errorf("checkpoint schedule: %w", err)
		}
	}
	c.Start()
	defer c.Stop()

	s.engine.PublishStatus()

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range s.sources {
		g.Go(func() error { return s.pollLoop(gctx, src) })
	}
	g.Go(func() error { return s.evalLoop(gctx) })
	g.Go(func() error { return s.outcomeLoop(gctx) })

	s.log.Info("scheduler started",
		logger.Int("sources", len(s.sources)),
		logger.Duration("evaluation_interval", s.cfg.EvaluationInterval))

	err = g.Wait()

	// final checkpoint on the way out
	cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	s.checkpoint(cctx)
	cancel()

	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Scheduler) startSources(ctx context.Context) ([]drepo.Lifecycle, error) {
	var started []drepo.Lifecycle
	for _, src := range s.sources {
		lc, ok := src.Source.(drepo.Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Start(ctx); err != nil {
			return started, fmt.Errorf("start source %s: %w", src.Source.Name(), err)
		}
		started = append(started, lc)
	}
	return started, nil
}

func (s *Scheduler) closeSources(started []drepo.Lifecycle) {
	for _, lc := range started {
		if err := lc.Close(); err != nil {
			s.log.Warn("source close failed", logger.Error(err))
		}
	}
}

func (s *Scheduler) checkpoint(ctx context.Context) {
	if err := s.weights.Checkpoint(ctx); err != nil {
		s.log.Error("weights checkpoint failed", logger.Error(err))
	}
}

func (s *Scheduler) pollLoop(ctx context.Context, src PollSource) error {
	b := NewBackoff(src.PollInterval, s.cfg.Backoff)
	for {
		delay := s.PollOnce(ctx, src, b)
		s.monitor.SetNextDelay(src.Source.Name(), delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// PollOnce fetches every instrument currently due on src and returns the
// delay before the next poll.
func (s *Scheduler) PollOnce(ctx context.Context, src PollSource, b *Backoff) time.Duration {
	name := src.Source.Name()
	due := s.Due(name)
	if len(due) == 0 {
		return b.Next()
	}

	var lastErr error
	for _, inst := range due {
		if ctx.Err() != nil {
			return b.Next()
		}
		q, err := s.fetch(ctx, src, inst)
		if err != nil {
			if ctx.Err() != nil {
				return b.Next()
			}
			lastErr = err
			s.monitor.RecordFailure(name, err)
			s.log.Warn("quote fetch failed",
				logger.String("source", name),
				logger.String("instrument", inst.ID),
				logger.Error(err))
			continue
		}
		s.monitor.RecordSuccess(name)
		if err := s.engine.OnQuote(ctx, q); err != nil && !isQuietRejection(err) {
			s.log.Debug("quote not recorded",
				logger.String("source", name),
				logger.String("instrument", inst.ID),
				logger.Error(err))
		}
	}
	if lastErr != nil {
		return b.Failure(lastErr)
	}
	return b.Success()
}

// isQuietRejection reports pipeline drops that are routine, not faults.
func isQuietRejection(err error) bool {
	return errors.Is(err, middleware.ErrThrottled) || errors.Is(err, middleware.ErrDuplicateQuote)
}

func (s *Scheduler) fetch(ctx context.Context, src PollSource, inst models.Instrument) (models.Quote, error) {
	fctx := ctx
	if src.Timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, src.Timeout)
		defer cancel()
	}
	start := s.now()
	q, err := src.Source.FetchQuote(fctx, inst)
	s.metrics.RecordLatency("fetch", s.now().Sub(start).Seconds())
	if err != nil {
		var rl *models.RateLimitError
		var tf *models.TransientFetchError
		if !errors.As(err, &rl) && !errors.As(err, &tf) {
			err = &models.TransientFetchError{Source: src.Source.Name(), Instrument: inst.ID, Err: err}
		}
		return models.Quote{}, err
	}
	q.InstrumentID = inst.ID
	if q.Source == "" {
		q.Source = src.Source.Name()
	}
	return q, nil
}

// Due lists the instruments source should poll now: those it is primary
// for, plus those it backs up while their primary is degraded.
func (s *Scheduler) Due(source string) []models.Instrument {
	var out []models.Instrument
	for _, in := range s.engine.Instruments() {
		switch {
		case in.Source == source:
			out = append(out, in)
		case in.Fallback == source && s.monitor.IsDegraded(in.Source):
			out = append(out, in)
		}
	}
	return out
}

func (s *Scheduler) evalLoop(ctx context.Context) error {
	t := time.NewTicker(s.cfg.EvaluationInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			start := s.now()
			if err := s.engine.EvaluateAll(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("evaluation cycle failed", logger.Error(err))
			}
			s.metrics.RecordLatency("evaluation_cycle", s.now().Sub(start).Seconds())
		}
	}
}

func (s *Scheduler) outcomeLoop(ctx context.Context) error {
	t := time.NewTicker(s.cfg.OutcomeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.engine.CheckOutcomes(s.now())
		}
	}
}
