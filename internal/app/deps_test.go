package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/friendchat/backend/internal/config"
	"github.com/friendchat/backend/internal/handlers"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Close() {}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		UploadDir:       t.TempDir(),
		UploadMaxBytes:  1 << 20,
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		AuthRateLimit:   config.RateLimitConfig{Requests: 5, Window: time.Minute, Burst: 5},
		WebSocket:       config.WebSocketConfig{SendBuffer: 8, PingPeriod: time.Second, PongWait: 2 * time.Second, WriteWait: time.Second, ReadLimit: 4096},
		UserCacheTTL:    time.Second,
	}
}

func requireWired(t *testing.T, deps handlers.Dependencies) {
	t.Helper()
	switch {
	case deps.Users == nil:
		t.Fatal("expected user store to be configured")
	case deps.Sessions == nil:
		t.Fatal("expected session manager to be configured")
	case deps.Friends == nil:
		t.Fatal("expected friend service to be configured")
	case deps.Messages == nil:
		t.Fatal("expected message router to be configured")
	case deps.Images == nil:
		t.Fatal("expected image uploader to be configured")
	case deps.AuthLimiter == nil:
		t.Fatal("expected auth limiter to be configured")
	case deps.LiveChannel == nil:
		t.Fatal("expected live channel to be configured")
	case deps.Metrics == nil:
		t.Fatal("expected metrics handler to be configured")
	}
}

func TestBuildDependenciesPostgres(t *testing.T) {
	cfg := testConfig(t)
	cfg.ObjectStore = config.ObjectStoreConfig{Bucket: "test-bucket", Endpoint: "http://localhost:9000", Region: "us-east-1"}

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	deps, cleanup, err := buildDependencies(context.Background(), fakePool{}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleanup == nil {
		t.Fatal("expected cleanup function")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = cleanup(ctx)
	}()

	requireWired(t, deps)
	if deps.Files != nil {
		t.Fatal("bucket uploads should not be served by the API")
	}
	if deps.StoreKind != config.StorePostgres || deps.HealthCheck == nil {
		t.Fatalf("expected a postgres health check, got kind %q", deps.StoreKind)
	}
	if err := deps.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to surface the pool failure")
	}
}

func TestBuildDependenciesMemoryServesFlow(t *testing.T) {
	cfg := testConfig(t)

	deps, cleanup, err := buildDependencies(context.Background(), nil, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = cleanup(context.Background()) }()

	requireWired(t, deps)
	if deps.Files == nil {
		t.Fatal("expected local uploads to be served")
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics to be served, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || deps.StoreKind != config.StoreMemory {
		t.Fatalf("expected memory store to be healthy, got %d for %q", rec.Code, deps.StoreKind)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected missing user to be rejected before upgrade, got %d", rec.Code)
	}
}

func TestBuildDependenciesRejectsBadUploadDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.UploadDir = ""

	if _, _, err := buildDependencies(context.Background(), nil, cfg); err == nil {
		t.Fatal("expected error for empty upload dir")
	}
}
