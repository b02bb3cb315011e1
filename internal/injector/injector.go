//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/docsync/docsync/internal/config"
	"github.com/docsync/docsync/internal/core/observability/log"
	"github.com/docsync/docsync/internal/core/registry"
	"github.com/docsync/docsync/internal/server"
)

// ProvideServer assembles the WebSocket endpoint and everything behind it
// from the loaded configuration. The returned cleanup closes the storage
// backend.
func ProvideServer(cfg config.Config, reg prometheus.Registerer) (*server.WebSocketServer, func(), error) {
	wire.Build(
		provideLogger,
		wire.Bind(new(log.Log), new(*log.Logger)),
		provideStorage,
		provideIdentity,
		providePermissions,
		provideManagerConfig,
		registry.New,
		server.NewMetrics,
		server.NewManager,
		provideWebSocketServer,
	)
	return nil, nil, nil
}
