package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/friendchat/backend/internal/apperr"
	"github.com/friendchat/backend/internal/delivery"
	"github.com/friendchat/backend/internal/models"
	"github.com/friendchat/backend/internal/presence"
	"github.com/friendchat/backend/internal/repositories"
)

type harness struct {
	users    *repositories.MemoryUserRepository
	registry *presence.Registry
	router   *delivery.Router
	hub      *Hub
	server   *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	users := repositories.NewMemoryUserRepository()
	messages := repositories.NewMemoryMessageRepository(users)
	registry := presence.NewRegistry()
	router := delivery.NewRouter(users, messages, registry)
	hub := NewHub(registry, router, users, nil, Config{PingPeriod: time.Second, PongWait: 2 * time.Second})
	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		server.Close()
	})
	return &harness{users: users, registry: registry, router: router, hub: hub, server: server}
}

func (h *harness) addUser(t *testing.T, name string) models.User {
	t.Helper()
	now := time.Now().UTC()
	user := models.User{ID: uuid.NewString(), Name: name, Email: name + "@example.com", Password: "hash", CreatedAt: now, UpdatedAt: now}
	if err := h.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (h *harness) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	h.waitRegistered(t, userID)
	return conn
}

func (h *harness) waitRegistered(t *testing.T, userID string) presence.Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, ok := h.registry.Lookup(userID); ok {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user %s never registered", userID)
	return nil
}

func readFrame(t *testing.T, conn *websocket.Conn) outbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame outbound
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestHubPushesStoredMessageToRecipient(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser(t, "alice")
	bob := h.addUser(t, "bob")

	conn := h.dial(t, alice.ID)

	sent, err := h.router.SendMessage(context.Background(), delivery.SendInput{
		SenderID: bob.ID, RecipientID: alice.ID, Type: models.MessageTypeText, Text: "hello",
	})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Type != delivery.EventReceiveMessage || frame.Message == nil {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	if frame.Message.ID != sent.ID || frame.Message.SenderName != "bob" {
		t.Fatalf("expected pushed message %s from bob got %+v", sent.ID, frame.Message)
	}
}

func TestHubInboundSendMessage(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser(t, "alice")
	bob := h.addUser(t, "bob")

	aliceConn := h.dial(t, alice.ID)
	bobConn := h.dial(t, bob.ID)

	if err := aliceConn.WriteJSON(inbound{Type: FrameSendMessage, RecipientID: bob.ID, MessageType: models.MessageTypeText, Text: "hey bob"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	ack := readFrame(t, aliceConn)
	if ack.Type != FrameMessageSent || ack.Message == nil || *ack.Message.Text != "hey bob" {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	push := readFrame(t, bobConn)
	if push.Type != delivery.EventReceiveMessage || push.Message == nil || push.Message.ID != ack.Message.ID {
		t.Fatalf("unexpected push: %+v", push)
	}

	if err := aliceConn.WriteJSON(inbound{Type: FrameSendMessage, RecipientID: bob.ID, MessageType: "video"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	failure := readFrame(t, aliceConn)
	if failure.Type != FrameError || failure.Error == nil || failure.Error.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error frame got %+v", failure)
	}

	if err := aliceConn.WriteJSON(map[string]string{"type": "dance"}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	unsupported := readFrame(t, aliceConn)
	if unsupported.Type != FrameError {
		t.Fatalf("expected error frame for unsupported type got %+v", unsupported)
	}
}

func TestHubNewerConnectionSupersedesOlder(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser(t, "alice")

	first := h.dial(t, alice.ID)
	firstHandle := h.waitRegistered(t, alice.ID)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/?user=" + alice.ID
	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	defer second.Close()

	deadline := time.Now().Add(2 * time.Second)
	var current presence.Conn
	for time.Now().Before(deadline) {
		current, _ = h.registry.Lookup(alice.ID)
		if current != nil && current != firstHandle {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if current == firstHandle || current == nil {
		t.Fatal("expected the newer connection to be registered")
	}

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected superseded connection to be closed normally got %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if still, ok := h.registry.Lookup(alice.ID); !ok || still != current {
		t.Fatal("stale disconnect evicted the newer connection")
	}
}

func TestHubRejectsUnknownUser(t *testing.T) {
	h := newHarness(t)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/?user=" + uuid.NewString()
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 got %+v", resp)
	}

	url = "ws" + strings.TrimPrefix(h.server.URL, "http") + "/"
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing user got %+v (%v)", resp, err)
	}
}

func TestHubShutdownClosesConnections(t *testing.T) {
	h := newHarness(t)
	alice := h.addUser(t, "alice")
	conn := h.dial(t, alice.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.hub.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if h.registry.Len() != 0 {
		t.Fatalf("expected registry drained got %d", h.registry.Len())
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close got %v", err)
	}
}
