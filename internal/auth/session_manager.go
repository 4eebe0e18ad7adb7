// Package auth issues opaque bearer tokens and rotates refresh tokens.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/friendchat/backend/internal/logging"
	"github.com/friendchat/backend/internal/models"
)

const tokenBytes = 32

var (
	// ErrSessionNotFound reports an unknown, revoked or already rotated refresh token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired reports a refresh token past its expiry.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// Session is the stored half of a token pair.
type Session struct {
	RefreshToken string
	UserID       string
	ExpiresAt    time.Time
}

// SessionStore persists refresh tokens. Delete must report ErrSessionNotFound
// when the token is absent so a token can only be rotated once.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, refreshToken string) (Session, error)
	Delete(ctx context.Context, refreshToken string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Manager hands out token pairs and rotates refresh tokens through a SessionStore.
type Manager struct {
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      SessionStore
	now        func() time.Time
}

// NewManager panics without a store.
func NewManager(accessTTL, refreshTTL time.Duration, store SessionStore) *Manager {
	if store == nil {
		panic("auth: session store must not be nil")
	}
	return &Manager{accessTTL: accessTTL, refreshTTL: refreshTTL, store: store, now: time.Now}
}

// WithClock replaces the time source used to stamp and expire tokens.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// Issue records a fresh refresh token for userID and returns the pair.
func (m *Manager) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("auth: user id must be provided")
	}

	var pair [2]string
	for i := range pair {
		tok, err := randomToken()
		if err != nil {
			return models.SessionTokens{}, err
		}
		pair[i] = tok
	}

	now := m.now().UTC()
	tokens := models.SessionTokens{
		AccessToken:      pair[0],
		AccessExpiresAt:  now.Add(m.accessTTL),
		RefreshToken:     pair[1],
		RefreshExpiresAt: now.Add(m.refreshTTL),
	}
	session := Session{RefreshToken: tokens.RefreshToken, UserID: userID, ExpiresAt: tokens.RefreshExpiresAt}
	if err := m.store.Save(ctx, session); err != nil {
		return models.SessionTokens{}, fmt.Errorf("save session: %w", err)
	}
	return tokens, nil
}

// Refresh consumes refreshToken and issues a new pair for the same user.
// Expired tokens are deleted and rejected.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, ErrSessionNotFound
	}

	session, err := m.store.Find(ctx, refreshToken)
	if err != nil {
		return models.SessionTokens{}, err
	}

	// Delete before checking expiry so the token is gone either way; losing
	// this race to a concurrent refresh surfaces as ErrSessionNotFound.
	if err := m.store.Delete(ctx, refreshToken); err != nil {
		return models.SessionTokens{}, err
	}
	if m.now().UTC().After(session.ExpiresAt) {
		return models.SessionTokens{}, ErrRefreshTokenExpired
	}
	return m.Issue(ctx, session.UserID)
}

// Revoke forgets refreshToken. Unknown tokens are ignored.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) {
	if refreshToken != "" {
		_ = m.store.Delete(ctx, refreshToken)
	}
}

// PurgeExpired drops every session whose refresh token has expired.
func (m *Manager) PurgeExpired(ctx context.Context) (int, error) {
	return m.store.DeleteExpired(ctx, m.now().UTC())
}

// SweepExpired calls PurgeExpired every interval until ctx is done.
func (m *Manager) SweepExpired(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger := logging.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.PurgeExpired(ctx)
			switch {
			case err != nil:
				logger.Warn("purge expired sessions", "error", err)
			case n > 0:
				logger.Info("purged expired sessions", "count", n)
			}
		}
	}
}

func randomToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
