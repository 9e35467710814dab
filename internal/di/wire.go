//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SignalPulse/pkg/config"
	"SignalPulse/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideRegistry,
	ProvideMetrics,
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideClickHouseClient,
	ProvideJournal,
	ProvideWeightStore,
)

var engineSet = wire.NewSet(
	ProvideInstruments,
	ProvideHub,
	ProvideAdaptiveWeights,
	ProvideSourceMonitor,
	ProvideSignalEngine,
	ProvideAlertMonitor,
	ProvidePollSources,
	ProvideScheduler,
)

var deliverySet = wire.NewSet(
	ProvideSinkFeeds,
	ProvideJournalConsumer,
	ProvideAPIHandler,
	ProvideHTTPServer,
	ProvideApp,
)

// InitializeApp wires the application from configuration. The returned
// cleanup releases clients and stores in reverse order of creation.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(infraSet, engineSet, deliverySet)
	return nil, nil, nil
}
