package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/friendchat/backend/internal/db"
	"github.com/friendchat/backend/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidTextRepr     = "22P02"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, name, email, password_hash, image, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, user.ID, user.Name, user.Email, user.Password, user.Image, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email", email)
}

// FindByID fetches a user by identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.User{}, ErrNotFound
	}
	return r.findOne(ctx, "id", id)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, column, value string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// column is one of a fixed set chosen by the caller above, never user input.
	row := conn.QueryRow(ctx, `
        SELECT id, name, email, password_hash, image, created_at, updated_at
        FROM users
        WHERE `+column+` = $1
    `, value)

	var user models.User
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Password, &user.Image, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by %s: %w", column, err)
	}

	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// ListOthers returns every user except the one identified by excludeID.
func (r *PostgresUserRepository) ListOthers(ctx context.Context, excludeID string) ([]models.UserSummary, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, name, email, image
        FROM users
        WHERE id::TEXT <> $1
        ORDER BY name, id
    `, excludeID)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}

	return collectSummaries(rows, "users")
}

// PostgresRelationshipRepository stores friend requests and friendships in PostgreSQL.
type PostgresRelationshipRepository struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresRelationshipRepository constructs a relationship repository backed by PostgreSQL.
func NewPostgresRelationshipRepository(pool db.Pool) *PostgresRelationshipRepository {
	return &PostgresRelationshipRepository{pool: pool, now: time.Now}
}

// Mutate locks both user rows, reads the pair state, and applies fn's result in one transaction.
func (r *PostgresRelationshipRepository) Mutate(ctx context.Context, userA, userB string, fn TransitionFunc) error {
	if !validUUIDs(userA, userB) {
		return ErrNotFound
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return db.RunInTx(ctx, conn, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(ctx context.Context, tx pgx.Tx) error {
		// Rows are locked in id order so two transactions on overlapping pairs cannot deadlock.
		rows, err := tx.Query(ctx, `
            SELECT id FROM users
            WHERE id IN ($1, $2)
            ORDER BY id
            FOR UPDATE
        `, userA, userB)
		if err != nil {
			return fmt.Errorf("lock users: %w", err)
		}
		locked := 0
		for rows.Next() {
			locked++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("lock users: %w", err)
		}
		if locked < 2 {
			return ErrNotFound
		}

		current, err := readPairState(ctx, tx, userA, userB)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		return r.apply(ctx, tx, userA, userB, planTransition(current, next))
	})
}

func (r *PostgresRelationshipRepository) apply(ctx context.Context, tx pgx.Tx, userA, userB string, p transitionPlan) error {
	now := r.now().UTC()

	if p.clearForward {
		if _, err := tx.Exec(ctx, `DELETE FROM friend_requests WHERE sender_id = $1 AND recipient_id = $2`, userA, userB); err != nil {
			return fmt.Errorf("delete friend request: %w", err)
		}
	}
	if p.clearBackward {
		if _, err := tx.Exec(ctx, `DELETE FROM friend_requests WHERE sender_id = $1 AND recipient_id = $2`, userB, userA); err != nil {
			return fmt.Errorf("delete friend request: %w", err)
		}
	}
	if p.removeFriends {
		if _, err := tx.Exec(ctx, `
            DELETE FROM friendships
            WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
        `, userA, userB); err != nil {
			return fmt.Errorf("delete friendship: %w", err)
		}
	}
	if p.addForward {
		if err := insertRequest(ctx, tx, userA, userB, now); err != nil {
			return err
		}
	}
	if p.addBackward {
		if err := insertRequest(ctx, tx, userB, userA, now); err != nil {
			return err
		}
	}
	if p.addFriends {
		if _, err := tx.Exec(ctx, `
            INSERT INTO friendships (user_id, friend_id, created_at)
            VALUES ($1, $2, $3), ($2, $1, $3)
        `, userA, userB, now); err != nil {
			return mapWriteError("insert friendship", err)
		}
	}

	return nil
}

func insertRequest(ctx context.Context, tx pgx.Tx, sender, recipient string, at time.Time) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO friend_requests (sender_id, recipient_id, created_at)
        VALUES ($1, $2, $3)
    `, sender, recipient, at)
	if err != nil {
		return mapWriteError("insert friend request", err)
	}
	return nil
}

func readPairState(ctx context.Context, q pgx.Tx, userA, userB string) (models.FriendState, error) {
	var friends, forward, backward bool
	err := q.QueryRow(ctx, `
        SELECT
            EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2),
            EXISTS (SELECT 1 FROM friend_requests WHERE sender_id = $1 AND recipient_id = $2),
            EXISTS (SELECT 1 FROM friend_requests WHERE sender_id = $2 AND recipient_id = $1)
    `, userA, userB).Scan(&friends, &forward, &backward)
	if err != nil {
		return models.FriendStateNone, fmt.Errorf("read relationship: %w", err)
	}
	return stateFrom(friends, forward, backward), nil
}

// State reports the current relationship between userA and userB.
func (r *PostgresRelationshipRepository) State(ctx context.Context, userA, userB string) (models.FriendState, error) {
	if !validUUIDs(userA, userB) {
		return models.FriendStateNone, ErrNotFound
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.FriendStateNone, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var state models.FriendState
	err = db.RunInTx(ctx, conn, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		state, err = readPairState(ctx, tx, userA, userB)
		return err
	})
	return state, err
}

// Incoming lists the users who have sent userID a pending request.
func (r *PostgresRelationshipRepository) Incoming(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return r.listSummaries(ctx, "incoming requests", `
        SELECT u.id, u.name, u.email, u.image
        FROM friend_requests fr
        JOIN users u ON u.id = fr.sender_id
        WHERE fr.recipient_id = $1
        ORDER BY fr.created_at, u.id
    `, userID)
}

// Outgoing lists the users userID has sent a pending request to.
func (r *PostgresRelationshipRepository) Outgoing(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return r.listSummaries(ctx, "outgoing requests", `
        SELECT u.id, u.name, u.email, u.image
        FROM friend_requests fr
        JOIN users u ON u.id = fr.recipient_id
        WHERE fr.sender_id = $1
        ORDER BY fr.created_at, u.id
    `, userID)
}

// Friends lists the accepted friends of userID.
func (r *PostgresRelationshipRepository) Friends(ctx context.Context, userID string) ([]models.UserSummary, error) {
	return r.listSummaries(ctx, "friends", `
        SELECT u.id, u.name, u.email, u.image
        FROM friendships f
        JOIN users u ON u.id = f.friend_id
        WHERE f.user_id = $1
        ORDER BY f.created_at, u.id
    `, userID)
}

// FriendIDs lists only the identifiers of userID's friends.
func (r *PostgresRelationshipRepository) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	friends, err := r.Friends(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(friends))
	for _, f := range friends {
		ids = append(ids, f.ID)
	}
	return ids, nil
}

func (r *PostgresRelationshipRepository) listSummaries(ctx context.Context, what, query, userID string) ([]models.UserSummary, error) {
	if !validUUIDs(userID) {
		return nil, ErrNotFound
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}

	return collectSummaries(rows, what)
}

// PostgresMessageRepository provides PostgreSQL-backed persistence for chat messages.
type PostgresMessageRepository struct {
	pool  db.Pool
	clock *monotonicClock
}

// NewPostgresMessageRepository constructs a message repository backed by PostgreSQL.
func NewPostgresMessageRepository(pool db.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pool: pool, clock: newMonotonicClock(nil)}
}

// Create stores a new message, assigning its id and timestamp.
func (r *PostgresMessageRepository) Create(ctx context.Context, msg models.Message) (models.Message, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Message{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	msg.ID = uuid.NewString()
	msg.CreatedAt = r.clock.Now()

	_, err = conn.Exec(ctx, `
        INSERT INTO messages (id, sender_id, recipient_id, message_type, message_text, image_url, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, msg.ID, msg.SenderID, msg.RecipientID, string(msg.Type), msg.Text, msg.ImageURL, msg.CreatedAt)
	if err != nil {
		return models.Message{}, mapWriteError("insert message", err)
	}

	return msg, nil
}

// ListBetween returns messages between the pair in either direction ordered by creation time.
func (r *PostgresMessageRepository) ListBetween(ctx context.Context, userA, userB string) ([]models.Message, error) {
	if !validUUIDs(userA, userB) {
		return []models.Message{}, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT m.id, m.sender_id, COALESCE(u.name, ''), m.recipient_id, m.message_type, m.message_text, m.image_url, m.created_at
        FROM messages m
        LEFT JOIN users u ON u.id = m.sender_id
        WHERE (m.sender_id = $1 AND m.recipient_id = $2)
           OR (m.sender_id = $2 AND m.recipient_id = $1)
        ORDER BY m.created_at ASC, m.id ASC
    `, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			msg     models.Message
			msgType string
		)
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.SenderName, &msg.RecipientID, &msgType, &msg.Text, &msg.ImageURL, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Type = models.MessageType(msgType)
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// Delete removes the messages with the given ids, ignoring ids that do not exist.
func (r *PostgresMessageRepository) Delete(ctx context.Context, ids []string) (int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM messages WHERE id = ANY($1::UUID[])`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func collectSummaries(rows pgx.Rows, what string) ([]models.UserSummary, error) {
	defer rows.Close()

	summaries := []models.UserSummary{}
	for rows.Next() {
		var s models.UserSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Image); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}

	return summaries, nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrConflict
		case pgForeignKeyViolation, pgInvalidTextRepr:
			return ErrNotFound
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func validUUIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ RelationshipRepository = (*PostgresRelationshipRepository)(nil)
var _ MessageRepository = (*PostgresMessageRepository)(nil)
