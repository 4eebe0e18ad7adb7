// Package presence tracks which users currently hold a live connection.
package presence

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/friendchat/backend/internal/models"
)

// ErrStaleConnection reports an unregister for a connection that no longer owns
// its user's entry, because a newer connection has replaced it. Callers treat it
// as a no-op.
var ErrStaleConnection = errors.New("presence: connection superseded")

// Event is a server-initiated notification pushed over a live connection.
type Event struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message,omitempty"`
}

// Conn is a live connection handle. Push must not block on the network; it
// either queues the event or fails immediately. Implementations must be
// comparable, typically a pointer.
type Conn interface {
	Push(ctx context.Context, event Event) error
}

// Registry maps users to their single active connection. Last register wins.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	owners map[Conn]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		owners: make(map[Conn]string),
	}
}

// Register installs conn as the active connection for userID, replacing any
// previous handle. It returns the superseded handle, if any, without closing it.
func (r *Registry) Register(userID string, conn Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.owners[conn]; ok && owner != userID {
		delete(r.conns, owner)
	}

	prev, ok := r.conns[userID]
	if ok && prev != conn {
		delete(r.owners, prev)
	} else {
		prev = nil
	}

	r.conns[userID] = conn
	r.owners[conn] = userID
	return prev
}

// Unregister removes conn only if it is still the active handle for its user.
// A handle that was superseded by a newer registration yields ErrStaleConnection
// and leaves the newer entry in place.
func (r *Registry) Unregister(conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[conn]
	if !ok || r.conns[userID] != conn {
		return ErrStaleConnection
	}
	delete(r.owners, conn)
	delete(r.conns, userID)
	return nil
}

// Lookup returns the active connection for userID.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// Len reports how many users are online.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Online returns the sorted ids of users with an active connection.
func (r *Registry) Online() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Drain empties the registry and returns the handles it held so the caller can
// close them during shutdown.
func (r *Registry) Drain() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	r.conns = make(map[string]Conn)
	r.owners = make(map[Conn]string)
	return out
}
