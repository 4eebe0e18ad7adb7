// Package ws serves the live websocket channel used for message delivery.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/friendchat/backend/internal/apperr"
	"github.com/friendchat/backend/internal/delivery"
	"github.com/friendchat/backend/internal/logging"
	"github.com/friendchat/backend/internal/models"
	"github.com/friendchat/backend/internal/presence"
	"github.com/friendchat/backend/internal/repositories"
)

// Config tunes per-connection buffering and keepalive.
type Config struct {
	SendBuffer int
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
}

// DefaultConfig mirrors the keepalive settings the frontend expects.
func DefaultConfig() Config {
	return Config{
		SendBuffer: 64,
		PingPeriod: 20 * time.Second,
		PongWait:   25 * time.Second,
		WriteWait:  3 * time.Second,
		ReadLimit:  8192,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 4 / 5
	}
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = def.ReadLimit
	}
	return c
}

// MessageSender persists and routes a message.
type MessageSender interface {
	SendMessage(ctx context.Context, in delivery.SendInput) (models.Message, error)
}

// UserDirectory resolves user identities.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// ConnectionCounter observes accepted connections.
type ConnectionCounter interface {
	ConnectionOpened()
}

// Hub upgrades HTTP requests to websocket clients and registers them for presence.
type Hub struct {
	registry *presence.Registry
	router   MessageSender
	users    UserDirectory
	counter  ConnectionCounter
	cfg      Config
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*Client]struct{}
	stopping bool
	wg       sync.WaitGroup
}

// NewHub builds a Hub. counter may be nil.
func NewHub(registry *presence.Registry, router MessageSender, users UserDirectory, counter ConnectionCounter, cfg Config) *Hub {
	if registry == nil || router == nil || users == nil {
		panic("ws: registry, router and users must not be nil")
	}
	return &Hub{
		registry: registry,
		router:   router,
		users:    users,
		counter:  counter,
		cfg:      cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The frontend is served from a different origin during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*Client]struct{}),
	}
}

// ServeHTTP handles GET /api/v1/ws?user={id}.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		writeError(w, apperr.Validation("user is required"))
		return
	}
	if _, err := h.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			writeError(w, apperr.NotFound("user %s not found", userID))
			return
		}
		writeError(w, apperr.Store("lookup user", err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(ctx).Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	connID := uuid.NewString()
	logger := logging.FromContext(ctx).With(slog.String("user_id", userID), slog.String("conn_id", connID))
	client := newClient(h, conn, userID, connID, logger)

	if !h.track(client) {
		client.close(websocket.CloseGoingAway, "server shutting down")
		client.writePump()
		return
	}
	defer h.untrack(client)

	if prev := h.registry.Register(userID, client); prev != nil {
		if old, ok := prev.(*Client); ok {
			old.close(websocket.CloseNormalClosure, "replaced by a newer connection")
		}
	}
	if h.counter != nil {
		h.counter.ConnectionOpened()
	}
	logger.Info("websocket connected")

	go client.writePump()
	client.readPump(logging.WithLogger(ctx, logger))
}

func (h *Hub) track(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopping {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) untrack(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.wg.Done()
}

// Shutdown drains the presence registry, closes every live connection and waits
// for their read loops to finish or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.stopping = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.registry.Drain()
	for _, c := range clients {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]errorBody{
		"error": {Kind: apperr.KindOf(err), Message: apperr.MessageOf(err)},
	})
}
