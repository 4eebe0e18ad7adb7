package handlers

import (
	"context"
	"io"

	"github.com/friendchat/backend/internal/delivery"
	"github.com/friendchat/backend/internal/models"
)

// UserStore captures the persistence operations required by the auth and user handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	ListOthers(ctx context.Context, excludeID string) ([]models.UserSummary, error)
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
}

// FriendService captures the friend-request workflow used by the friend handlers.
type FriendService interface {
	SendRequest(ctx context.Context, sender, recipient string) error
	AcceptRequest(ctx context.Context, sender, recipient string) error
	RejectRequest(ctx context.Context, sender, recipient string) error
	CancelRequest(ctx context.Context, sender, recipient string) error
	Relationship(ctx context.Context, userA, userB string) (models.FriendState, error)
	ListIncoming(ctx context.Context, userID string) ([]models.UserSummary, error)
	ListOutgoing(ctx context.Context, userID string) ([]models.UserSummary, error)
	ListFriends(ctx context.Context, userID string) ([]models.UserSummary, error)
	ListFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// MessageRouter stores and delivers direct messages.
type MessageRouter interface {
	SendMessage(ctx context.Context, in delivery.SendInput) (models.Message, error)
	FetchHistory(ctx context.Context, userA, userB string) ([]models.Message, error)
	DeleteMessages(ctx context.Context, ids []string) (int, error)
}

// ImageUploader persists uploaded image files and returns their reference.
// Delete removes an upload whose message was rejected.
type ImageUploader interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
}
