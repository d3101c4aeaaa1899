package auth

import (
	"context"
	"errors"
	"time"

	"incidentdesk/core/store"
	"incidentdesk/core/utils"

	"github.com/gofrs/uuid/v5"
)

// SessionManager persists one row per issued refresh token.
type SessionManager struct {
	store  store.SessionsStore
	ttl    time.Duration
	logger *utils.Logger
	now    func() time.Time
}

func NewSessionManager(sessions store.SessionsStore, ttl time.Duration, logger *utils.Logger) *SessionManager {
	return &SessionManager{store: sessions, ttl: ttl, logger: logger, now: utils.NowUTC}
}

// Create stores a new session and returns it with the refresh token value.
func (m *SessionManager) Create(ctx context.Context, user *store.User, ip, userAgent string) (*store.Session, string, error) {
	id := uuid.Must(uuid.NewV4()).String()
	token, hash, err := newRefreshToken(id)
	if err != nil {
		return nil, "", err
	}
	now := m.now()
	sess := &store.Session{
		ID:               id,
		UserID:           user.ID,
		RefreshTokenHash: hash,
		IPAddress:        ip,
		UserAgent:        userAgent,
		IsValid:          true,
		ExpiresAt:        now.Add(m.ttl),
		CreatedAt:        now,
		LastUsedAt:       now,
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, "", err
	}
	return sess, token, nil
}

// Validate resolves a refresh token to a live session and bumps lastUsedAt.
func (m *SessionManager) Validate(ctx context.Context, refreshToken string) (*store.Session, error) {
	sess, err := m.lookup(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	now := m.now()
	if !sess.IsValid || !now.Before(sess.ExpiresAt) {
		return nil, ErrInvalidRefreshToken
	}
	if err := m.store.Touch(ctx, sess.ID, now); err != nil {
		m.logger.Warnf("session touch %s: %v", sess.ID, err)
	}
	sess.LastUsedAt = now
	return sess, nil
}

// Revoke invalidates only the session behind refreshToken.
func (m *SessionManager) Revoke(ctx context.Context, refreshToken string) (*store.Session, error) {
	sess, err := m.lookup(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if err := m.store.Invalidate(ctx, sess.ID); err != nil {
		return nil, err
	}
	sess.IsValid = false
	return sess, nil
}

func (m *SessionManager) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return m.store.InvalidateAllForUser(ctx, userID)
}

// ListActive returns the user's sessions that are still valid and unexpired,
// newest first.
func (m *SessionManager) ListActive(ctx context.Context, userID string) ([]store.Session, error) {
	return m.store.ListActiveForUser(ctx, userID, m.now())
}

func (m *SessionManager) Cleanup(ctx context.Context) (int64, error) {
	return m.store.PurgeExpired(ctx, m.now())
}

func (m *SessionManager) lookup(ctx context.Context, refreshToken string) (*store.Session, error) {
	id, secret, ok := splitRefreshToken(refreshToken)
	if !ok {
		return nil, ErrInvalidRefreshToken
	}
	sess, err := m.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, err
	}
	if !secretMatches(secret, sess.RefreshTokenHash) {
		return nil, ErrInvalidRefreshToken
	}
	return sess, nil
}
