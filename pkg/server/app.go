package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"SignalPulse/internal/domain/models"
	"SignalPulse/internal/service/dispatcher"
	"SignalPulse/internal/usecase"
	xhttp "SignalPulse/pkg/http"
	pkgkafka "SignalPulse/pkg/kafka"
	"SignalPulse/pkg/logger"
)

// SinkFeed pairs an event sink with the hub subscription it drains.
type SinkFeed struct {
	Sink   *usecase.EventSink
	Events <-chan models.Event
}

// App owns the runtime lifecycle: scheduler loops, event sinks, the journal
// consumer and the HTTP server. Resource cleanup belongs to the caller.
type App struct {
	scheduler       *usecase.Scheduler
	hub             *dispatcher.Hub
	sinks           []SinkFeed
	consumer        *pkgkafka.Consumer
	httpServer      *xhttp.Server
	shutdownTimeout time.Duration
	log             *logger.Logger
}

func New(
	scheduler *usecase.Scheduler,
	hub *dispatcher.Hub,
	sinks []SinkFeed,
	consumer *pkgkafka.Consumer,
	httpServer *xhttp.Server,
	shutdownTimeout time.Duration,
	log *logger.Logger,
) *App {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &App{
		scheduler:       scheduler,
		hub:             hub,
		sinks:           sinks,
		consumer:        consumer,
		httpServer:      httpServer,
		shutdownTimeout: shutdownTimeout,
		log:             log,
	}
}

// Run starts everything and blocks until SIGINT, SIGTERM, ctx cancellation or
// the first component failure.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("start journal consumer: %w", err)
		}
	}
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	a.log.Info("signalpulse started",
		logger.String("addr", a.httpServer.Addr()),
		logger.Int("sinks", len(a.sinks)),
		logger.Bool("consumer", a.consumer != nil))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.scheduler.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	for _, f := range a.sinks {
		g.Go(func() error { return f.Sink.Run(gctx, f.Events) })
	}
	g.Go(func() error {
		select {
		case err := <-a.httpServer.Err():
			return fmt.Errorf("http server: %w", err)
		case <-gctx.Done():
			return nil
		}
	})

	<-gctx.Done()
	a.log.Info("shutting down")
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown", logger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop", logger.Error(err))
		}
	}
	a.hub.Close()

	if runErr != nil {
		a.log.Error("stopped with error", logger.Error(runErr))
		return runErr
	}
	a.log.Info("shutdown complete")
	return nil
}
