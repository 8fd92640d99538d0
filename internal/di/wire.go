//go:build wireinject
// +build wireinject

package di

import (
	"RiskKernel/pkg/config"
	"RiskKernel/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		ProvideKernelMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideDecisionStore,
		ProvideFeatureStore,
		ProvideDecisionPublisher,

		// Kernel services
		ProvideTailEstimator,
		ProvideClassifier,
		ProvideSizer,
		ProvideEstimatorFactory,
		ProvideForecaster,

		// Use cases
		ProvideSignalBoard,
		ProvideAlphaBoard,
		ProvideOrchestrator,
		ProvideDecisionProcessor,
		ProvideTickPipeline,
		ProvideKafkaTicksHandler,
		ProvideKafkaSignalsHandler,
		ProvideKernelHandler,

		// Application server
		wire.Struct(new(server.Deps), "*"),
		server.New,
	)
	return &server.App{}, nil
}
