// Package repositories holds the persistence contracts for users, relationships
// and messages together with their PostgreSQL and in-memory implementations.
package repositories

import (
	"context"
	"errors"

	"github.com/friendchat/backend/internal/models"
)

var (
	// ErrNotFound reports a missing user, request or message.
	ErrNotFound = errors.New("record not found")
	// ErrConflict reports a duplicate email or a relationship write that does not apply.
	ErrConflict = errors.New("record conflict")
)

// UserRepository stores accounts.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	ListOthers(ctx context.Context, excludeID string) ([]models.UserSummary, error)
}

// TransitionFunc receives the current state of an ordered user pair and returns
// the state to persist. Returning an error aborts the mutation with no writes.
type TransitionFunc func(current models.FriendState) (models.FriendState, error)

// RelationshipRepository persists friend requests and friendships.
//
// Mutate must run fn and apply its result as one atomic unit with respect to
// every other Mutate call touching either user.
type RelationshipRepository interface {
	Mutate(ctx context.Context, userA, userB string, fn TransitionFunc) error
	State(ctx context.Context, userA, userB string) (models.FriendState, error)
	Incoming(ctx context.Context, userID string) ([]models.UserSummary, error)
	Outgoing(ctx context.Context, userID string) ([]models.UserSummary, error)
	Friends(ctx context.Context, userID string) ([]models.UserSummary, error)
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

// MessageRepository exposes the append-only message log.
type MessageRepository interface {
	// Create assigns the message identity and timestamp, stores it and returns the stored record.
	Create(ctx context.Context, msg models.Message) (models.Message, error)
	// ListBetween returns messages exchanged by the two users in either direction, oldest first.
	ListBetween(ctx context.Context, userA, userB string) ([]models.Message, error)
	// Delete removes the messages with the given ids and reports how many existed.
	Delete(ctx context.Context, ids []string) (int, error)
}
