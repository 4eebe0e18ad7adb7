package models

import "time"

// User represents an account within the FriendChat platform.
type User struct {
	ID        string
	Name      string
	Email     string
	Password  string
	Image     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary projects the user onto the fields shown in lists and chat headers.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Image: u.Image}
}

// UserSummary is the minimal identity and display information about a user.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image,omitempty"`
}

// MessageType distinguishes text messages from image messages.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

// Valid reports whether t is a supported message type.
func (t MessageType) Valid() bool {
	return t == MessageTypeText || t == MessageTypeImage
}

// Message is a persisted direct message between two users.
type Message struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"senderId"`
	SenderName  string      `json:"senderName,omitempty"`
	RecipientID string      `json:"recipientId"`
	Type        MessageType `json:"messageType"`
	Text        *string     `json:"message"`
	ImageURL    *string     `json:"imageUrl"`
	CreatedAt   time.Time   `json:"timeStamp"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// FriendState is the relationship between an ordered pair of users (A, B).
type FriendState int

const (
	// FriendStateNone means neither user has a pending request or friendship.
	FriendStateNone FriendState = iota
	// FriendStateRequested means A sent B a request that is still pending.
	FriendStateRequested
	// FriendStateRequestedBy means B sent A a request that is still pending.
	FriendStateRequestedBy
	// FriendStateFriends means A and B are friends.
	FriendStateFriends
)

func (s FriendState) String() string {
	switch s {
	case FriendStateNone:
		return "none"
	case FriendStateRequested:
		return "requested"
	case FriendStateRequestedBy:
		return "requested_by"
	case FriendStateFriends:
		return "friends"
	default:
		return "unknown"
	}
}

// Reverse returns the same relationship seen from B's side.
func (s FriendState) Reverse() FriendState {
	switch s {
	case FriendStateRequested:
		return FriendStateRequestedBy
	case FriendStateRequestedBy:
		return FriendStateRequested
	default:
		return s
	}
}
