package friends

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/friendchat/backend/internal/apperr"
	"github.com/friendchat/backend/internal/logging"
	"github.com/friendchat/backend/internal/models"
	"github.com/friendchat/backend/internal/repositories"
)

// UserDirectory resolves user identities.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Service exposes friend-request transitions and relationship queries.
type Service struct {
	users UserDirectory
	store repositories.RelationshipRepository
}

// NewService constructs a Service backed by the provided collaborators.
func NewService(users UserDirectory, store repositories.RelationshipRepository) *Service {
	if users == nil || store == nil {
		panic("friends: user directory and relationship store must not be nil")
	}
	return &Service{users: users, store: store}
}

// SendRequest records a pending request from sender to recipient.
func (s *Service) SendRequest(ctx context.Context, sender, recipient string) error {
	return s.transition(ctx, ActionSend, sender, recipient)
}

// AcceptRequest turns sender's pending request to recipient into a friendship.
func (s *Service) AcceptRequest(ctx context.Context, sender, recipient string) error {
	return s.transition(ctx, ActionAccept, sender, recipient)
}

// RejectRequest discards sender's pending request on behalf of recipient.
func (s *Service) RejectRequest(ctx context.Context, sender, recipient string) error {
	return s.transition(ctx, ActionReject, sender, recipient)
}

// CancelRequest withdraws sender's pending request to recipient.
func (s *Service) CancelRequest(ctx context.Context, sender, recipient string) error {
	return s.transition(ctx, ActionCancel, sender, recipient)
}

func (s *Service) transition(ctx context.Context, action Action, sender, recipient string) error {
	ctx, span := logging.StartSpan(ctx, "friends."+action.String())
	defer span.End()
	logger := logging.FromContext(ctx)

	sender, recipient = strings.TrimSpace(sender), strings.TrimSpace(recipient)
	if sender == "" || recipient == "" {
		return apperr.Validation("sender and recipient are required")
	}
	if sender == recipient {
		return apperr.Validation("sender and recipient must differ")
	}

	if err := s.requireUsers(ctx, sender, recipient); err != nil {
		return err
	}

	var from, to models.FriendState
	err := s.store.Mutate(ctx, sender, recipient, func(current models.FriendState) (models.FriendState, error) {
		from = current
		next, err := Next(current, action)
		to = next
		return next, err
	})
	if err != nil {
		logger.Warn("friend transition rejected",
			slog.String("action", action.String()),
			slog.String("sender", sender),
			slog.String("recipient", recipient),
			slog.String("state", from.String()),
			slog.Any("error", err),
		)
		return classify("friend "+action.String(), err)
	}

	logger.Info("friend transition applied",
		slog.String("action", action.String()),
		slog.String("sender", sender),
		slog.String("recipient", recipient),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	return nil
}

// Relationship reports the state of the pair as seen from userA.
func (s *Service) Relationship(ctx context.Context, userA, userB string) (models.FriendState, error) {
	if err := s.requireUsers(ctx, userA, userB); err != nil {
		return models.FriendStateNone, err
	}
	state, err := s.store.State(ctx, userA, userB)
	if err != nil {
		return models.FriendStateNone, classify("read relationship", err)
	}
	return state, nil
}

// ListIncoming returns the users with a pending request to userID.
func (s *Service) ListIncoming(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return s.list(ctx, userID, "list incoming requests", s.store.Incoming)
}

// ListOutgoing returns the users userID has a pending request to.
func (s *Service) ListOutgoing(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return s.list(ctx, userID, "list outgoing requests", s.store.Outgoing)
}

// ListFriends returns userID's accepted friends.
func (s *Service) ListFriends(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return s.list(ctx, userID, "list friends", s.store.Friends)
}

// ListFriendIDs returns only the identifiers of userID's friends.
func (s *Service) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	if err := s.requireUsers(ctx, userID); err != nil {
		return nil, err
	}
	ids, err := s.store.FriendIDs(ctx, userID)
	if err != nil {
		return nil, classify("list friend ids", err)
	}
	return ids, nil
}

func (s *Service) list(ctx context.Context, userID, op string, fetch func(context.Context, string) ([]models.UserSummary, error)) ([]models.UserSummary, error) {
	if err := s.requireUsers(ctx, userID); err != nil {
		return nil, err
	}
	out, err := fetch(ctx, userID)
	if err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (s *Service) requireUsers(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return apperr.Validation("user id is required")
		}
		if _, err := s.users.FindByID(ctx, id); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return apperr.NotFound("user %s not found", id)
			}
			return apperr.Store("lookup user", err)
		}
	}
	return nil
}

// classify maps repository errors onto the public taxonomy, leaving errors that
// are already classified untouched.
func classify(op string, err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return apperr.NotFound("user not found")
	case errors.Is(err, repositories.ErrConflict):
		return apperr.Conflict("relationship changed concurrently")
	default:
		return apperr.Store(op, err)
	}
}
