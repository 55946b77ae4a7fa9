//go:build wireinject
// +build wireinject

package di

import (
	"MarketPull/pkg/config"
	"MarketPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Storage and messaging
		ProvideStateStore,
		ProvideListingArchive,
		ProvideEventPublisher,
		ProvideKafkaConsumer,

		// Marketplaces and notifications
		ProvideMarketplaces,
		ProvideHub,

		// Use cases
		ProvideQueryRegistry,
		ProvideScheduler,
		ProvideTargetingService,
		ProvidePollLoops,
		ProvideCommandsHandler,

		// HTTP
		ProvideLimiter,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil, nil
}
