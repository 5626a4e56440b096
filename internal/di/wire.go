//go:build wireinject
// +build wireinject

package di

import (
	"BasisPulse/pkg/config"
	"BasisPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideHTTPClient,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideResponseCache,

		// Core services
		ProvideGateway,
		ProvideCoalescer,
		ProvideHistoryStore,
		ProvideHub,
		ProvideBroadcaster,

		// Repositories and adapters
		ProvideExchangeAdapters,
		ProvideStaticProducer,
		ProvideBackfillSource,
		ProvideCompositeSink,
		ProvideMarketStream,

		// Use cases
		ProvideTickProcessor,
		ProvideTickPipeline,
		ProvidePriceCollector,
		ProvideKafkaTicksHandler,
		ProvideIndicatorEngine,
		ProvideBasisAggregator,

		// Handlers
		ProvideMarketHandler,
		ProvideStreamHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
