package injector

import (
	"context"
	"time"

	"github.com/docsync/docsync/internal/auth"
	"github.com/docsync/docsync/internal/config"
	"github.com/docsync/docsync/internal/core/observability/log"
	"github.com/docsync/docsync/internal/server"
	"github.com/docsync/docsync/internal/storage"
)

func provideLogger(cfg config.Config) *log.Logger {
	return log.New(log.ParseLevel(cfg.LogLevel))
}

func provideStorage(cfg config.Config) (storage.Storage, func(), error) {
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	if r, ok := store.(*storage.Redis); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, nil, err
		}
	}
	return store, func() { _ = store.Close() }, nil
}

func provideManagerConfig(cfg config.Config) server.ManagerConfig {
	return server.ManagerConfig{
		SaveInterval:      cfg.Collab.SaveInterval,
		HeartbeatInterval: cfg.Collab.HeartbeatInterval,
	}
}

// Identity and permissions have no external provider yet, so every token maps
// to an anonymous user and everyone may edit.
func provideIdentity() auth.Identity {
	return auth.NewStaticIdentity(nil, true)
}

func providePermissions() auth.Permissions {
	return auth.AllowAll{}
}

func provideWebSocketServer(m *server.Manager, identity auth.Identity, logger *log.Logger, cfg config.Config) *server.WebSocketServer {
	return server.NewWebSocketServer(m, identity, logger, cfg.Collab.MaxMessageSize)
}
