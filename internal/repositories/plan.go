package repositories

import (
	"sync"
	"time"

	"github.com/friendchat/backend/internal/models"
)

// transitionPlan lists the writes that move an ordered pair (A, B) between states.
type transitionPlan struct {
	clearForward  bool // delete request A -> B
	clearBackward bool // delete request B -> A
	addForward    bool // insert request A -> B
	addBackward   bool // insert request B -> A
	addFriends    bool
	removeFriends bool
}

func planTransition(current, next models.FriendState) transitionPlan {
	var p transitionPlan
	if current == next {
		return p
	}

	switch current {
	case models.FriendStateRequested:
		p.clearForward = true
	case models.FriendStateRequestedBy:
		p.clearBackward = true
	case models.FriendStateFriends:
		p.removeFriends = true
	}

	switch next {
	case models.FriendStateRequested:
		p.addForward = true
	case models.FriendStateRequestedBy:
		p.addBackward = true
	case models.FriendStateFriends:
		p.addFriends = true
	}

	return p
}

// stateFrom derives the pair state from the stored edges.
func stateFrom(friends, forward, backward bool) models.FriendState {
	switch {
	case friends:
		return models.FriendStateFriends
	case forward:
		return models.FriendStateRequested
	case backward:
		return models.FriendStateRequestedBy
	default:
		return models.FriendStateNone
	}
}

// monotonicClock hands out UTC timestamps that never go backwards, truncated to
// the microsecond resolution PostgreSQL stores.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newMonotonicClock(now func() time.Time) *monotonicClock {
	if now == nil {
		now = time.Now
	}
	return &monotonicClock{now: now}
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
