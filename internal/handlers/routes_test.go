package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/friendchat/backend/internal/auth"
	"github.com/friendchat/backend/internal/delivery"
	"github.com/friendchat/backend/internal/friends"
	"github.com/friendchat/backend/internal/models"
	"github.com/friendchat/backend/internal/presence"
	"github.com/friendchat/backend/internal/repositories"
	"github.com/friendchat/backend/internal/storage"
)

type testApp struct {
	t        *testing.T
	mux      *http.ServeMux
	users    *repositories.MemoryUserRepository
	store    *auth.MemorySessionStore
	registry *presence.Registry
	images   *storage.LocalStorage
}

func newTestApp(t *testing.T, mutate ...func(*Dependencies)) *testApp {
	t.Helper()

	users := repositories.NewMemoryUserRepository()
	relationships := repositories.NewMemoryRelationshipRepository(users)
	messages := repositories.NewMemoryMessageRepository(users)
	registry := presence.NewRegistry()
	store := auth.NewInMemorySessionStore()

	images, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}

	deps := Dependencies{
		Users:    users,
		Sessions: auth.NewManager(time.Minute, time.Hour, store),
		Friends:  friends.NewService(users, relationships),
		Messages: delivery.NewRouter(users, messages, registry, delivery.WithImageResolver(images)),
		Images:   images,
		NowFunc:  func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
		Files:    http.FileServer(http.Dir(images.Dir())),
	}
	for _, fn := range mutate {
		fn(&deps)
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)
	return &testApp{t: t, mux: mux, users: users, store: store, registry: registry, images: images}
}

func (a *testApp) addUser(name string) models.User {
	a.t.Helper()
	user := models.User{ID: uuid.NewString(), Name: name, Email: name + "@example.com"}
	if err := a.users.Create(context.Background(), user); err != nil {
		a.t.Fatalf("create user %s: %v", name, err)
	}
	return user
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) get(path string) *httptest.ResponseRecorder {
	return a.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (a *testApp) postJSON(path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		a.t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func expectErrorKind(t *testing.T, rec *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	expectStatus(t, rec, status)
	body := decodeBody[errorResponse](t, rec)
	if string(body.Error.Kind) != kind {
		t.Fatalf("expected error kind %q got %q (%s)", kind, body.Error.Kind, body.Error.Message)
	}
}

func TestRegisterRoutesOptionalMounts(t *testing.T) {
	app := newTestApp(t)
	if rec := app.get("/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected /metrics to be unmounted, got %d", rec.Code)
	}

	metricsHit := false
	app = newTestApp(t, func(d *Dependencies) {
		d.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			metricsHit = true
			w.WriteHeader(http.StatusOK)
		})
	})
	expectStatus(t, app.get("/metrics"), http.StatusOK)
	if !metricsHit {
		t.Fatal("expected metrics handler to be invoked")
	}
}

func TestRegisterRoutesServesUploadedFiles(t *testing.T) {
	app := newTestApp(t)
	ref, err := app.images.Save(context.Background(), "photo.png", bytes.NewReader([]byte("png-bytes")))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	rec := app.get("/" + ref)
	expectStatus(t, rec, http.StatusOK)
	if rec.Body.String() != "png-bytes" {
		t.Fatalf("unexpected file body %q", rec.Body.String())
	}
}
