// Package users provides a cached view over the user repository.
package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/friendchat/backend/internal/models"
	"github.com/friendchat/backend/internal/repositories"
)

// ErrRepositoryUnavailable is returned when the cache has nothing to delegate to.
var ErrRepositoryUnavailable = errors.New("users: repository unavailable")

type cacheEntry struct {
	user    models.User
	expires time.Time
}

// CachingRepository wraps a UserRepository with a TTL cache for FindByID, the
// lookup every friend transition and message send performs.
type CachingRepository struct {
	base repositories.UserRepository
	ttl  time.Duration
	now  func() time.Time

	mu     sync.RWMutex
	items  map[string]cacheEntry
	lastGC time.Time
}

// NewCachingRepository returns a repository that caches id lookups for ttl.
func NewCachingRepository(base repositories.UserRepository, ttl time.Duration) *CachingRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingRepository{
		base:  base,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheEntry),
	}
}

// FindByID returns a cached user when available, otherwise it delegates to the
// underlying repository and stores the result. Misses are not cached.
func (c *CachingRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	if c == nil || c.base == nil {
		return models.User{}, ErrRepositoryUnavailable
	}

	now := c.now()

	c.mu.RLock()
	entry, ok := c.items[id]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.user, nil
	}

	user, err := c.base.FindByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}

	c.mu.Lock()
	c.items[id] = cacheEntry{user: user, expires: now.Add(c.ttl)}
	c.gcLocked(now)
	c.mu.Unlock()

	return user, nil
}

// Create stores the user and primes the cache with it.
func (c *CachingRepository) Create(ctx context.Context, user models.User) error {
	if c == nil || c.base == nil {
		return ErrRepositoryUnavailable
	}
	if err := c.base.Create(ctx, user); err != nil {
		return err
	}
	c.mu.Lock()
	c.items[user.ID] = cacheEntry{user: user, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// FindByEmail always reads through so credential checks see the latest hash.
func (c *CachingRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	if c == nil || c.base == nil {
		return models.User{}, ErrRepositoryUnavailable
	}
	return c.base.FindByEmail(ctx, email)
}

// ListOthers always reads through.
func (c *CachingRepository) ListOthers(ctx context.Context, excludeID string) ([]models.UserSummary, error) {
	if c == nil || c.base == nil {
		return nil, ErrRepositoryUnavailable
	}
	return c.base.ListOthers(ctx, excludeID)
}

// gcLocked drops expired entries, at most once per ttl.
func (c *CachingRepository) gcLocked(now time.Time) {
	if now.Sub(c.lastGC) < c.ttl {
		return
	}
	c.lastGC = now
	for id, entry := range c.items {
		if !now.Before(entry.expires) {
			delete(c.items, id)
		}
	}
}

var _ repositories.UserRepository = (*CachingRepository)(nil)
