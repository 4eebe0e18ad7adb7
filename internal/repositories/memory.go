package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/friendchat/backend/internal/models"
)

// MemoryUserRepository implements UserRepository for tests and local development.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]models.User
	byEmail map[string]string
}

// NewMemoryUserRepository returns an empty in-memory user repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]models.User),
		byEmail: make(map[string]string),
	}
}

// Create stores the user, rejecting duplicate ids and emails.
func (r *MemoryUserRepository) Create(_ context.Context, user models.User) error {
	email := strings.ToLower(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[user.ID]; exists {
		return ErrConflict
	}
	if _, exists := r.byEmail[email]; exists {
		return ErrConflict
	}
	r.byID[user.ID] = user
	r.byEmail[email] = user.ID
	return nil
}

// FindByEmail fetches a user by their email address.
func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return r.byID[id], nil
}

// FindByID fetches a user by identifier.
func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

// ListOthers returns every user except excludeID, ordered by name.
func (r *MemoryUserRepository) ListOthers(_ context.Context, excludeID string) ([]models.UserSummary, error) {
	r.mu.RLock()
	out := make([]models.UserSummary, 0, len(r.byID))
	for id, user := range r.byID {
		if id != excludeID {
			out = append(out, user.Summary())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryUserRepository) summaries(ids []string) []models.UserSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		if user, ok := r.byID[id]; ok {
			out = append(out, user.Summary())
		}
	}
	return out
}

func (r *MemoryUserRepository) name(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id].Name
}

// relationRecord holds one user's edges. Each edge remembers when it was created
// so listings keep a stable order.
type relationRecord struct {
	mu       sync.Mutex
	friends  map[string]time.Time
	incoming map[string]time.Time
	outgoing map[string]time.Time
}

func newRelationRecord() *relationRecord {
	return &relationRecord{
		friends:  make(map[string]time.Time),
		incoming: make(map[string]time.Time),
		outgoing: make(map[string]time.Time),
	}
}

// MemoryRelationshipRepository implements RelationshipRepository with one lock per user.
// Mutations lock both users' records in id order, so disjoint pairs never contend.
type MemoryRelationshipRepository struct {
	users *MemoryUserRepository
	clock *monotonicClock

	mu      sync.Mutex
	records map[string]*relationRecord
}

// NewMemoryRelationshipRepository constructs a relationship repository that resolves
// user summaries through users.
func NewMemoryRelationshipRepository(users *MemoryUserRepository) *MemoryRelationshipRepository {
	return &MemoryRelationshipRepository{
		users:   users,
		clock:   newMonotonicClock(nil),
		records: make(map[string]*relationRecord),
	}
}

func (r *MemoryRelationshipRepository) record(userID string) *relationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		rec = newRelationRecord()
		r.records[userID] = rec
	}
	return rec
}

func (r *MemoryRelationshipRepository) lockPair(userA, userB string) (a, b *relationRecord, unlock func()) {
	a, b = r.record(userA), r.record(userB)
	if a == b {
		a.mu.Lock()
		return a, b, a.mu.Unlock
	}
	first, second := a, b
	if userB < userA {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return a, b, func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

func (r *MemoryRelationshipRepository) exists(ctx context.Context, ids ...string) error {
	if r.users == nil {
		return nil
	}
	for _, id := range ids {
		if _, err := r.users.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Mutate applies fn's result to the pair while both users' records are locked.
func (r *MemoryRelationshipRepository) Mutate(ctx context.Context, userA, userB string, fn TransitionFunc) error {
	if err := r.exists(ctx, userA, userB); err != nil {
		return err
	}

	a, b, unlock := r.lockPair(userA, userB)
	defer unlock()

	current := pairState(a, userB)
	next, err := fn(current)
	if err != nil {
		return err
	}

	p := planTransition(current, next)
	now := r.clock.Now()

	if p.clearForward {
		delete(a.outgoing, userB)
		delete(b.incoming, userA)
	}
	if p.clearBackward {
		delete(b.outgoing, userA)
		delete(a.incoming, userB)
	}
	if p.removeFriends {
		delete(a.friends, userB)
		delete(b.friends, userA)
	}
	if p.addForward {
		a.outgoing[userB] = now
		b.incoming[userA] = now
	}
	if p.addBackward {
		b.outgoing[userA] = now
		a.incoming[userB] = now
	}
	if p.addFriends {
		a.friends[userB] = now
		b.friends[userA] = now
	}

	return nil
}

func pairState(a *relationRecord, userB string) models.FriendState {
	_, friends := a.friends[userB]
	_, forward := a.outgoing[userB]
	_, backward := a.incoming[userB]
	return stateFrom(friends, forward, backward)
}

// State reports the current relationship between userA and userB.
func (r *MemoryRelationshipRepository) State(ctx context.Context, userA, userB string) (models.FriendState, error) {
	if err := r.exists(ctx, userA, userB); err != nil {
		return models.FriendStateNone, err
	}
	a, _, unlock := r.lockPair(userA, userB)
	defer unlock()
	return pairState(a, userB), nil
}

// Incoming lists the users who have sent userID a pending request.
func (r *MemoryRelationshipRepository) Incoming(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return r.list(ctx, userID, func(rec *relationRecord) map[string]time.Time { return rec.incoming })
}

// Outgoing lists the users userID has sent a pending request to.
func (r *MemoryRelationshipRepository) Outgoing(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return r.list(ctx, userID, func(rec *relationRecord) map[string]time.Time { return rec.outgoing })
}

// Friends lists the accepted friends of userID.
func (r *MemoryRelationshipRepository) Friends(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return r.list(ctx, userID, func(rec *relationRecord) map[string]time.Time { return rec.friends })
}

// FriendIDs lists only the identifiers of userID's friends.
func (r *MemoryRelationshipRepository) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	if err := r.exists(ctx, userID); err != nil {
		return nil, err
	}
	rec := r.record(userID)
	rec.mu.Lock()
	ids := orderedKeys(rec.friends)
	rec.mu.Unlock()
	return ids, nil
}

func (r *MemoryRelationshipRepository) list(ctx context.Context, userID string, set func(*relationRecord) map[string]time.Time) ([]models.UserSummary, error) {
	if err := r.exists(ctx, userID); err != nil {
		return nil, err
	}
	rec := r.record(userID)
	rec.mu.Lock()
	ids := orderedKeys(set(rec))
	rec.mu.Unlock()

	if r.users == nil {
		out := make([]models.UserSummary, 0, len(ids))
		for _, id := range ids {
			out = append(out, models.UserSummary{ID: id})
		}
		return out, nil
	}
	return r.users.summaries(ids), nil
}

func orderedKeys(m map[string]time.Time) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := m[ids[i]], m[ids[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return ids[i] < ids[j]
	})
	return ids
}

// MemoryMessageRepository implements MessageRepository with an in-memory append-only log.
type MemoryMessageRepository struct {
	users *MemoryUserRepository
	clock *monotonicClock

	mu       sync.RWMutex
	messages []models.Message
}

// NewMemoryMessageRepository constructs an empty message log. users may be nil,
// in which case sender names are left blank.
func NewMemoryMessageRepository(users *MemoryUserRepository) *MemoryMessageRepository {
	return &MemoryMessageRepository{
		users: users,
		clock: newMonotonicClock(nil),
	}
}

// Create appends the message, assigning its id and timestamp under the log lock
// so append order and timestamp order agree.
func (r *MemoryMessageRepository) Create(_ context.Context, msg models.Message) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg.ID = uuid.NewString()
	msg.CreatedAt = r.clock.Now()
	msg.SenderName = ""

	r.messages = append(r.messages, msg)
	return msg, nil
}

// ListBetween returns a snapshot of the pair's messages, oldest first.
func (r *MemoryMessageRepository) ListBetween(_ context.Context, userA, userB string) ([]models.Message, error) {
	r.mu.RLock()
	out := make([]models.Message, 0)
	for _, msg := range r.messages {
		if (msg.SenderID == userA && msg.RecipientID == userB) || (msg.SenderID == userB && msg.RecipientID == userA) {
			out = append(out, msg)
		}
	}
	r.mu.RUnlock()

	if r.users != nil {
		for i := range out {
			out[i].SenderName = r.users.name(out[i].SenderID)
		}
	}
	return out, nil
}

// Delete removes the messages with the given ids, ignoring unknown ids.
func (r *MemoryMessageRepository) Delete(_ context.Context, ids []string) (int, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.messages[:0]
	removed := 0
	for _, msg := range r.messages {
		if _, ok := drop[msg.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	r.messages = kept
	return removed, nil
}

var _ UserRepository = (*MemoryUserRepository)(nil)
var _ RelationshipRepository = (*MemoryRelationshipRepository)(nil)
var _ MessageRepository = (*MemoryMessageRepository)(nil)
