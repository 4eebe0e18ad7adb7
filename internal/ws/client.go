package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/friendchat/backend/internal/apperr"
	"github.com/friendchat/backend/internal/delivery"
	"github.com/friendchat/backend/internal/logging"
	"github.com/friendchat/backend/internal/models"
	"github.com/friendchat/backend/internal/presence"
)

// Frame types exchanged over the live channel.
const (
	FrameSendMessage = "send-message"
	FrameMessageSent = "message-sent"
	FrameError       = "error"
)

var (
	// ErrClosed is returned by Push once the connection has shut down.
	ErrClosed = errors.New("ws: connection closed")
	// ErrSendQueueFull is returned by Push when the client is not draining its queue.
	ErrSendQueueFull = errors.New("ws: send queue full")
)

// inbound is a frame sent by the browser.
type inbound struct {
	Type        string             `json:"type"`
	RecipientID string             `json:"recipientId"`
	MessageType models.MessageType `json:"messageType"`
	Text        string             `json:"text"`
	ImageURL    string             `json:"imageUrl"`
}

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// outbound is a frame written to the browser.
type outbound struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message,omitempty"`
	Error   *errorBody      `json:"error,omitempty"`
}

// Client is one live websocket connection. It implements presence.Conn.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	id     string
	logger *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeMsg  []byte
}

func newClient(hub *Hub, conn *websocket.Conn, userID, id string, logger *slog.Logger) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		id:       id,
		logger:   logger,
		send:     make(chan []byte, hub.cfg.SendBuffer),
		done:     make(chan struct{}),
		closeMsg: websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	}
}

// UserID reports the user the connection was opened for.
func (c *Client) UserID() string { return c.userID }

// Push queues the event for the write pump without waiting on the network.
func (c *Client) Push(_ context.Context, event presence.Event) error {
	payload, err := json.Marshal(outbound{Type: event.Type, Message: event.Message})
	if err != nil {
		return err
	}
	return c.enqueue(payload)
}

func (c *Client) enqueue(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendQueueFull
	}
}

func (c *Client) reply(frame outbound) {
	payload, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("encode reply", slog.Any("error", err))
		return
	}
	if err := c.enqueue(payload); err != nil {
		c.logger.Warn("reply dropped", slog.String("type", frame.Type), slog.Any("error", err))
	}
}

func (c *Client) replyError(err error) {
	c.reply(outbound{Type: FrameError, Error: &errorBody{Kind: apperr.KindOf(err), Message: apperr.MessageOf(err)}})
}

// close stops the write pump, which sends a close frame with the given reason
// and releases the socket. It is safe to call more than once.
func (c *Client) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeMsg = websocket.FormatCloseMessage(code, reason)
		close(c.done)
	})
}

// readPump decodes inbound frames until the socket fails, then unregisters.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		if err := c.hub.registry.Unregister(c); err != nil {
			if errors.Is(err, presence.ErrStaleConnection) {
				c.logger.Debug("stale disconnect ignored")
			} else {
				c.logger.Warn("unregister connection", slog.Any("error", err))
			}
		}
		c.close(websocket.CloseNormalClosure, "")
		c.logger.Info("websocket disconnected")
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("websocket read failed", slog.Any("error", err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.replyError(apperr.Validation("only text frames are supported"))
			continue
		}

		var frame inbound
		if err := json.Unmarshal(data, &frame); err != nil {
			c.replyError(apperr.Validation("invalid frame: %v", err))
			continue
		}
		c.handle(ctx, frame)
	}
}

func (c *Client) handle(ctx context.Context, frame inbound) {
	switch strings.TrimSpace(frame.Type) {
	case FrameSendMessage:
		msg, err := c.hub.router.SendMessage(ctx, delivery.SendInput{
			SenderID:    c.userID,
			RecipientID: frame.RecipientID,
			Type:        frame.MessageType,
			Text:        frame.Text,
			ImageURL:    frame.ImageURL,
		})
		if err != nil {
			logging.FromContext(ctx).Warn("send message over websocket failed", slog.Any("error", err))
			c.replyError(err)
			return
		}
		c.reply(outbound{Type: FrameMessageSent, Message: &msg})
	default:
		c.replyError(apperr.Validation("unsupported frame type %q", frame.Type))
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn("websocket write failed", slog.Any("error", err))
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("websocket ping failed", slog.Any("error", err))
				c.close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, c.closeMsg, time.Now().Add(cfg.WriteWait))
			return
		}
	}
}
