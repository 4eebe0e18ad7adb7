package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type stubConn struct {
	name string
}

func (c *stubConn) Push(context.Context, Event) error { return nil }

func TestRegistryStaleUnregisterKeepsNewerConnection(t *testing.T) {
	registry := NewRegistry()
	h1 := &stubConn{name: "h1"}
	h2 := &stubConn{name: "h2"}

	if prev := registry.Register("user-1", h1); prev != nil {
		t.Fatalf("expected no previous handle got %v", prev)
	}
	if prev := registry.Register("user-1", h2); prev != h1 {
		t.Fatalf("expected h1 to be superseded got %v", prev)
	}

	if err := registry.Unregister(h1); !errors.Is(err, ErrStaleConnection) {
		t.Fatalf("expected stale connection error got %v", err)
	}

	conn, ok := registry.Lookup("user-1")
	if !ok || conn != h2 {
		t.Fatalf("expected h2 to remain registered got %v (ok=%v)", conn, ok)
	}

	if err := registry.Unregister(h2); err != nil {
		t.Fatalf("unregister h2: %v", err)
	}
	if _, ok := registry.Lookup("user-1"); ok {
		t.Fatal("expected user to be offline after unregister")
	}
	if err := registry.Unregister(h2); !errors.Is(err, ErrStaleConnection) {
		t.Fatalf("expected repeated unregister to be stale got %v", err)
	}
}

func TestRegistryReRegisterSameHandle(t *testing.T) {
	registry := NewRegistry()
	h := &stubConn{name: "h"}

	registry.Register("user-1", h)
	if prev := registry.Register("user-1", h); prev != nil {
		t.Fatalf("expected no superseded handle when re-registering got %v", prev)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected one entry got %d", registry.Len())
	}
}

func TestRegistryOnlineAndDrain(t *testing.T) {
	registry := NewRegistry()
	registry.Register("b", &stubConn{name: "b"})
	registry.Register("a", &stubConn{name: "a"})

	online := registry.Online()
	if len(online) != 2 || online[0] != "a" || online[1] != "b" {
		t.Fatalf("unexpected online users: %v", online)
	}

	drained := registry.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained handles got %d", len(drained))
	}
	if registry.Len() != 0 {
		t.Fatalf("expected registry to be empty after drain got %d", registry.Len())
	}
	for _, conn := range drained {
		if err := registry.Unregister(conn); !errors.Is(err, ErrStaleConnection) {
			t.Fatalf("expected drained handles to be stale got %v", err)
		}
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := NewRegistry()

	const users = 32
	var wg sync.WaitGroup
	wg.Add(users)
	for i := 0; i < users; i++ {
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", i%8)
			old := &stubConn{name: fmt.Sprintf("old-%d", i)}
			fresh := &stubConn{name: fmt.Sprintf("new-%d", i)}
			registry.Register(userID, old)
			registry.Register(userID, fresh)
			_ = registry.Unregister(old)
			registry.Lookup(userID)
		}(i)
	}
	wg.Wait()

	if registry.Len() != 8 {
		t.Fatalf("expected every user to keep a connection got %d", registry.Len())
	}
}
