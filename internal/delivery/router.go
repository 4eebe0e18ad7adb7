// Package delivery persists direct messages and forwards them to online recipients.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/friendchat/backend/internal/apperr"
	"github.com/friendchat/backend/internal/logging"
	"github.com/friendchat/backend/internal/metrics"
	"github.com/friendchat/backend/internal/models"
	"github.com/friendchat/backend/internal/presence"
	"github.com/friendchat/backend/internal/repositories"
)

// EventReceiveMessage is pushed to a recipient when a message addressed to them is stored.
const EventReceiveMessage = "receive-message"

// UserDirectory resolves user identities.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// ImageResolver confirms that an image reference points at an uploaded file.
type ImageResolver interface {
	Exists(ctx context.Context, ref string) (bool, error)
}

// Recorder receives delivery counters.
type Recorder interface {
	MessageStored(t models.MessageType)
	PushResult(result string)
}

// SendInput carries a message submitted by a sender.
type SendInput struct {
	SenderID    string
	RecipientID string
	Type        models.MessageType
	Text        string
	ImageURL    string
}

// Router persists messages and notifies recipients over their live connection.
type Router struct {
	users    UserDirectory
	messages repositories.MessageRepository
	presence *presence.Registry
	images   ImageResolver
	recorder Recorder
}

// Option customises a Router.
type Option func(*Router)

// WithImageResolver enables existence checks for image references. Without a
// resolver any non-empty reference is accepted.
func WithImageResolver(images ImageResolver) Option {
	return func(r *Router) { r.images = images }
}

// WithRecorder attaches delivery counters.
func WithRecorder(recorder Recorder) Option {
	return func(r *Router) { r.recorder = recorder }
}

// NewRouter builds a Router around the message store and presence registry.
func NewRouter(users UserDirectory, messages repositories.MessageRepository, registry *presence.Registry, opts ...Option) *Router {
	if users == nil || messages == nil || registry == nil {
		panic("delivery: users, messages and registry must not be nil")
	}
	r := &Router{users: users, messages: messages, presence: registry}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendMessage stores the message and then pushes it to the recipient when they
// are online. A failed push is logged and counted but never returned; the
// message stays retrievable through FetchHistory.
func (r *Router) SendMessage(ctx context.Context, in SendInput) (models.Message, error) {
	ctx, span := logging.StartSpan(ctx, "delivery.send_message")
	defer span.End()
	logger := logging.FromContext(ctx)

	msg, err := r.prepare(ctx, in)
	if err != nil {
		return models.Message{}, err
	}

	sender, err := r.lookupUser(ctx, msg.SenderID)
	if err != nil {
		return models.Message{}, err
	}
	if _, err := r.lookupUser(ctx, msg.RecipientID); err != nil {
		return models.Message{}, err
	}

	stored, err := r.messages.Create(ctx, msg)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Message{}, apperr.NotFound("user not found")
		}
		span.Fail(err)
		return models.Message{}, apperr.Store("store message", err)
	}
	stored.SenderName = sender.Name
	if r.recorder != nil {
		r.recorder.MessageStored(stored.Type)
	}

	logger.Info("message stored",
		slog.String("message_id", stored.ID),
		slog.String("sender", stored.SenderID),
		slog.String("recipient", stored.RecipientID),
		slog.String("type", string(stored.Type)),
	)

	r.push(ctx, stored)
	return stored, nil
}

func (r *Router) prepare(ctx context.Context, in SendInput) (models.Message, error) {
	msg := models.Message{
		SenderID:    strings.TrimSpace(in.SenderID),
		RecipientID: strings.TrimSpace(in.RecipientID),
		Type:        in.Type,
	}
	if msg.SenderID == "" || msg.RecipientID == "" {
		return models.Message{}, apperr.Validation("sender and recipient are required")
	}
	if !msg.Type.Valid() {
		return models.Message{}, apperr.Validation("message type must be %q or %q", models.MessageTypeText, models.MessageTypeImage)
	}

	switch msg.Type {
	case models.MessageTypeText:
		if strings.TrimSpace(in.Text) == "" {
			return models.Message{}, apperr.Validation("text messages require text")
		}
		text := in.Text
		msg.Text = &text
	case models.MessageTypeImage:
		ref := strings.TrimSpace(in.ImageURL)
		if ref == "" {
			return models.Message{}, apperr.Validation("image messages require an image reference")
		}
		if r.images != nil {
			ok, err := r.images.Exists(ctx, ref)
			if err != nil {
				return models.Message{}, apperr.Store("resolve image", err)
			}
			if !ok {
				return models.Message{}, apperr.Validation("image %s has not been uploaded", ref)
			}
		}
		msg.ImageURL = &ref
		if text := strings.TrimSpace(in.Text); text != "" {
			msg.Text = &text
		}
	}
	return msg, nil
}

func (r *Router) push(ctx context.Context, msg models.Message) {
	logger := logging.FromContext(ctx)

	conn, ok := r.presence.Lookup(msg.RecipientID)
	if !ok {
		r.record(metrics.PushOffline)
		logger.Debug("recipient offline, push skipped", slog.String("recipient", msg.RecipientID))
		return
	}

	event := presence.Event{Type: EventReceiveMessage, Message: &msg}
	if err := conn.Push(ctx, event); err != nil {
		r.record(metrics.PushFailed)
		logger.Warn("live push failed",
			slog.String("message_id", msg.ID),
			slog.String("recipient", msg.RecipientID),
			slog.Any("error", err),
		)
		return
	}
	r.record(metrics.PushDelivered)
}

func (r *Router) record(result string) {
	if r.recorder != nil {
		r.recorder.PushResult(result)
	}
}

// FetchHistory returns every message exchanged between the two users in either
// direction, oldest first.
func (r *Router) FetchHistory(ctx context.Context, userA, userB string) ([]models.Message, error) {
	userA, userB = strings.TrimSpace(userA), strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return nil, apperr.Validation("both users are required")
	}
	if _, err := r.lookupUser(ctx, userA); err != nil {
		return nil, err
	}
	if _, err := r.lookupUser(ctx, userB); err != nil {
		return nil, err
	}

	history, err := r.messages.ListBetween(ctx, userA, userB)
	if err != nil {
		return nil, apperr.Store("fetch history", err)
	}
	return history, nil
}

// DeleteMessages removes the identified messages and reports how many existed.
// Unknown ids are ignored.
func (r *Router) DeleteMessages(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, apperr.Validation("at least one message id is required")
	}

	seen := make(map[string]struct{}, len(ids))
	cleaned := make([]string, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if _, err := uuid.Parse(id); err != nil {
			return 0, apperr.Validation("invalid message id %q", raw)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		cleaned = append(cleaned, id)
	}

	removed, err := r.messages.Delete(ctx, cleaned)
	if err != nil {
		return 0, apperr.Store("delete messages", err)
	}
	logging.FromContext(ctx).Info("messages deleted",
		slog.Int("requested", len(cleaned)),
		slog.Int("removed", removed),
	)
	return removed, nil
}

func (r *Router) lookupUser(ctx context.Context, id string) (models.User, error) {
	user, err := r.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.User{}, apperr.NotFound("user %s not found", id)
		}
		return models.User{}, apperr.Store("lookup user", err)
	}
	return user, nil
}
