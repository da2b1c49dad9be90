//go:build wireinject
// +build wireinject

package di

import (
	"ParityBot/pkg/config"
	"ParityBot/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies for one run mode.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config, mode server.Mode) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideBinanceClient,
		ProvideClickHouseClient,
		ProvideCache,

		// Repositories
		ProvideStateStore,
		ProvideDecisionPipeline,
		ProvideTradeLogs,
		ProvideKafkaConsumer,
		ProvideTradeSink,

		// Use cases
		ProvideTimeframes,
		ProvideEngine,
		ProvideHistoryLoader,
		ProvideBacktestRunner,
		ProvideCandleFeed,
		ProvideLiveTrader,
		ProvideMatchUseCase,
		ProvideMatchSources,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
