// Package friends implements the friend-request state machine.
//
// The relationship between an ordered pair (A, B) is one of four states:
// none, A requested B, B requested A, or friends. Every transition is guarded by
// Next; repositories only persist the state Next returns.
package friends

import (
	"github.com/friendchat/backend/internal/apperr"
	"github.com/friendchat/backend/internal/models"
)

// Action is a transition requested on the ordered pair (sender, recipient).
type Action int

const (
	// ActionSend issues a request from sender to recipient.
	ActionSend Action = iota
	// ActionAccept is the recipient accepting the sender's request.
	ActionAccept
	// ActionReject is the recipient declining the sender's request.
	ActionReject
	// ActionCancel is the sender withdrawing their request.
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionSend:
		return "send"
	case ActionAccept:
		return "accept"
	case ActionReject:
		return "reject"
	case ActionCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Next returns the state that applying action to current produces, or the
// error describing why the transition is not allowed. current is the state of
// the pair as seen from the sender.
func Next(current models.FriendState, action Action) (models.FriendState, error) {
	switch action {
	case ActionSend:
		switch current {
		case models.FriendStateNone:
			return models.FriendStateRequested, nil
		case models.FriendStateRequested:
			return current, apperr.Conflict("friend request already sent")
		case models.FriendStateRequestedBy:
			return current, apperr.Conflict("a friend request from this user is already pending")
		case models.FriendStateFriends:
			return current, apperr.Conflict("users are already friends")
		}
	case ActionAccept, ActionReject, ActionCancel:
		switch current {
		case models.FriendStateRequested:
			if action == ActionAccept {
				return models.FriendStateFriends, nil
			}
			return models.FriendStateNone, nil
		case models.FriendStateFriends:
			return current, apperr.Conflict("users are already friends")
		case models.FriendStateNone, models.FriendStateRequestedBy:
			return current, apperr.NotFound("friend request not found")
		}
	}

	return current, apperr.Validation("unsupported transition %s from %s", action, current)
}
