//go:build wireinject
// +build wireinject

package di

import (
	"SeriesPrep/pkg/config"
	"SeriesPrep/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Logging and metrics
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisCache,
		ProvideCache,

		// Repositories (with business logic)
		ProvidePointStorage,
		ProvidePointPublisher,
		ProvideSeriesStore,
		ProvideFeedStream,

		// Domain services
		ProvideDiagnostics,
		ProvideHistClient,

		// Use cases
		ProvidePointProcessor,
		ProvidePointCollector,
		ProvideKafkaPointsHandler,
		ProvidePreprocessUseCase,
		ProvideBatchUseCase,
		ProvideSeriesUseCase,

		// Async jobs and queue
		ProvidePreprocessJob,
		ProvideBackfillJob,
		ProvideQueue,

		// HTTP API
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
