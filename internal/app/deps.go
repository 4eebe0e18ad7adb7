package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/friendchat/backend/internal/auth"
	"github.com/friendchat/backend/internal/config"
	"github.com/friendchat/backend/internal/db"
	"github.com/friendchat/backend/internal/delivery"
	"github.com/friendchat/backend/internal/friends"
	"github.com/friendchat/backend/internal/handlers"
	"github.com/friendchat/backend/internal/metrics"
	"github.com/friendchat/backend/internal/middleware"
	"github.com/friendchat/backend/internal/presence"
	"github.com/friendchat/backend/internal/repositories"
	"github.com/friendchat/backend/internal/storage"
	"github.com/friendchat/backend/internal/users"
	"github.com/friendchat/backend/internal/ws"
)

const (
	authLimiterTTL       = 10 * time.Minute
	sessionSweepInterval = 15 * time.Minute
)

// backend groups the repositories one store kind provides.
type backend struct {
	kind  string
	check func(ctx context.Context) error

	users         repositories.UserRepository
	relationships repositories.RelationshipRepository
	messages      repositories.MessageRepository
	sessions      auth.SessionStore
}

// newBackend returns PostgreSQL repositories over pool, or in-memory ones when pool is nil.
func newBackend(pool db.Pool) backend {
	if pool == nil {
		memUsers := repositories.NewMemoryUserRepository()
		return backend{
			kind:          config.StoreMemory,
			users:         memUsers,
			relationships: repositories.NewMemoryRelationshipRepository(memUsers),
			messages:      repositories.NewMemoryMessageRepository(memUsers),
			sessions:      auth.NewInMemorySessionStore(),
		}
	}
	return backend{
		kind:          config.StorePostgres,
		check:         func(ctx context.Context) error { return db.Ping(ctx, pool) },
		users:         repositories.NewPostgresUserRepository(pool),
		relationships: repositories.NewPostgresRelationshipRepository(pool),
		messages:      repositories.NewPostgresMessageRepository(pool),
		sessions:      repositories.NewPostgresSessionStore(pool),
	}
}

// newImageStore picks the object store when a bucket is configured and local
// disk otherwise. The handler is non-nil only for local disk, which the API serves itself.
func newImageStore(ctx context.Context, cfg config.Config) (storage.ImageStore, http.Handler, error) {
	if cfg.ObjectStore.Enabled() {
		s3Store, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, nil, fmt.Errorf("configure object store: %w", err)
		}
		return s3Store, nil, nil
	}

	local, err := storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		return nil, nil, fmt.Errorf("configure upload dir: %w", err)
	}
	return local, http.FileServer(http.Dir(local.Dir())), nil
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// The returned cleanup stops the session sweeper and closes every live
// connection. It must run after the HTTP server stops accepting requests.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, func(context.Context) error, error) {
	store := newBackend(pool)

	images, files, err := newImageStore(ctx, cfg)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	directory := users.NewCachingRepository(store.users, cfg.UserCacheTTL)
	registry := presence.NewRegistry()
	collectors := metrics.New(registry)

	router := delivery.NewRouter(directory, store.messages, registry,
		delivery.WithImageResolver(images),
		delivery.WithRecorder(collectors),
	)

	hub := ws.NewHub(registry, router, directory, collectors, ws.Config{
		SendBuffer: cfg.WebSocket.SendBuffer,
		PingPeriod: cfg.WebSocket.PingPeriod,
		PongWait:   cfg.WebSocket.PongWait,
		WriteWait:  cfg.WebSocket.WriteWait,
		ReadLimit:  cfg.WebSocket.ReadLimit,
	})

	sessions := auth.NewManager(cfg.AccessTokenTTL, cfg.RefreshTokenTTL, store.sessions)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go sessions.SweepExpired(sweepCtx, sessionSweepInterval)

	deps := handlers.Dependencies{
		Users:             directory,
		Sessions:          sessions,
		Friends:           friends.NewService(directory, store.relationships),
		Messages:          router,
		Images:            images,
		AuthLimiter:       middleware.NewIPRateLimiter(cfg.AuthRateLimit.Requests, cfg.AuthRateLimit.Window, cfg.AuthRateLimit.Burst, authLimiterTTL),
		MaxUploadBytes:    cfg.UploadMaxBytes,
		LiveChannel:       hub,
		Metrics:           collectors.Handler(),
		StoreKind:         store.kind,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		HealthCheck:       store.check,
		Files:             files,
	}

	cleanup := func(ctx context.Context) error {
		stopSweep()
		return hub.Shutdown(ctx)
	}
	return deps, cleanup, nil
}
