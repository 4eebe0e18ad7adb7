package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendchat/backend/internal/models"
	"github.com/friendchat/backend/internal/repositories"
)

type stubRepository struct {
	user  models.User
	err   error
	calls int
}

func (s *stubRepository) Create(context.Context, models.User) error { return s.err }

func (s *stubRepository) FindByEmail(context.Context, string) (models.User, error) {
	return s.user, s.err
}

func (s *stubRepository) FindByID(context.Context, string) (models.User, error) {
	s.calls++
	if s.err != nil {
		return models.User{}, s.err
	}
	return s.user, nil
}

func (s *stubRepository) ListOthers(context.Context, string) ([]models.UserSummary, error) {
	return nil, s.err
}

func TestCachingRepositoryFindByID(t *testing.T) {
	base := &stubRepository{user: models.User{ID: "user-1", Name: "alice"}}
	cache := NewCachingRepository(base, time.Minute)
	ctx := context.Background()

	user, err := cache.FindByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if user.Name != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := cache.FindByID(ctx, "user-1"); err != nil {
		t.Fatalf("find: %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("expected cached result got %d calls", base.calls)
	}
}

func TestCachingRepositoryDoesNotCacheMisses(t *testing.T) {
	base := &stubRepository{err: repositories.ErrNotFound}
	cache := NewCachingRepository(base, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.FindByID(context.Background(), "ghost"); !errors.Is(err, repositories.ErrNotFound) {
			t.Fatalf("expected not found got %v", err)
		}
	}
	if base.calls != 2 {
		t.Fatalf("expected misses to reach the base every time got %d calls", base.calls)
	}
}

func TestCachingRepositoryExpiry(t *testing.T) {
	base := &stubRepository{user: models.User{ID: "user-1"}}
	cache := NewCachingRepository(base, time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	if _, err := cache.FindByID(context.Background(), "user-1"); err != nil {
		t.Fatalf("find: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := cache.FindByID(context.Background(), "user-1"); err != nil {
		t.Fatalf("find: %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("expected cache miss after expiry got %d calls", base.calls)
	}
}

func TestCachingRepositoryCreatePrimesCache(t *testing.T) {
	base := &stubRepository{}
	cache := NewCachingRepository(base, time.Minute)

	if err := cache.Create(context.Background(), models.User{ID: "new", Name: "bob"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	user, err := cache.FindByID(context.Background(), "new")
	if err != nil || user.Name != "bob" {
		t.Fatalf("expected primed entry got %+v (%v)", user, err)
	}
	if base.calls != 0 {
		t.Fatalf("expected no base lookups got %d", base.calls)
	}
}

func TestCachingRepositoryUnavailable(t *testing.T) {
	cache := NewCachingRepository(nil, 0)
	if cache.ttl <= 0 {
		t.Fatalf("expected ttl to default positive got %v", cache.ttl)
	}
	if _, err := cache.FindByID(context.Background(), "x"); !errors.Is(err, ErrRepositoryUnavailable) {
		t.Fatalf("expected repository unavailable got %v", err)
	}
}

func TestCachingRepositorySweepIsThrottled(t *testing.T) {
	base := &stubRepository{user: models.User{ID: "any"}}
	cache := NewCachingRepository(base, time.Minute)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	find := func(id string) {
		t.Helper()
		if _, err := cache.FindByID(ctx, id); err != nil {
			t.Fatalf("find %s: %v", id, err)
		}
	}

	find("user-1")
	now = start.Add(30 * time.Second)
	find("user-2")
	if !cache.lastGC.Equal(start) {
		t.Fatalf("expected no sweep within one ttl, last sweep at %v", cache.lastGC)
	}

	now = start.Add(70 * time.Second)
	find("user-3")
	if !cache.lastGC.Equal(now) {
		t.Fatalf("expected a sweep once a ttl elapsed, last sweep at %v", cache.lastGC)
	}
	if _, ok := cache.items["user-1"]; ok {
		t.Fatal("expected the expired entry to be swept")
	}
	if len(cache.items) != 2 {
		t.Fatalf("expected user-2 and user-3 to remain, got %d entries", len(cache.items))
	}
}
