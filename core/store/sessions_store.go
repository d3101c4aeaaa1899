package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Session struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	RefreshTokenHash string    `json:"-"`
	IPAddress        string    `json:"ipAddress,omitempty"`
	UserAgent        string    `json:"userAgent,omitempty"`
	IsValid          bool      `json:"isValid"`
	ExpiresAt        time.Time `json:"expiresAt"`
	CreatedAt        time.Time `json:"createdAt"`
	LastUsedAt       time.Time `json:"lastUsedAt"`
}

type SessionsStore interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Invalidate(ctx context.Context, id string) error
	InvalidateAllForUser(ctx context.Context, userID string) (int64, error)
	ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]Session, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionsStore struct {
	db *DB
}

func NewSessionsStore(db *DB) SessionsStore {
	return &sessionsStore{db: db}
}

const sessionColumns = `id, user_id, refresh_token_hash, ip_address, user_agent, is_valid, expires_at, created_at, last_used_at`

func (s *sessionsStore) Save(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions(`+sessionColumns+`) VALUES(?,?,?,?,?,?,?,?,?)`,
		sess.ID, sess.UserID, sess.RefreshTokenHash, sess.IPAddress, sess.UserAgent, sess.IsValid,
		sess.ExpiresAt.UTC(), sess.CreatedAt.UTC(), sess.LastUsedAt.UTC())
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *sessionsStore) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

func (s *sessionsStore) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_used_at=? WHERE id=?`, at.UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *sessionsStore) Invalidate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET is_valid=? WHERE id=?`, false, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *sessionsStore) InvalidateAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET is_valid=? WHERE user_id=? AND is_valid=?`, false, userID, true)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sessionsStore) ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE user_id=? AND is_valid=? AND expires_at>? ORDER BY created_at DESC`,
		userID, true, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *sess)
	}
	return res, rows.Err()
}

// PurgeExpired removes sessions past expiry and sessions already invalidated.
func (s *sessionsStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at<=? OR is_valid=?`, now.UTC(), false)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.RefreshTokenHash, &sess.IPAddress, &sess.UserAgent, &sess.IsValid,
		&sess.ExpiresAt, &sess.CreatedAt, &sess.LastUsedAt); err != nil {
		return nil, err
	}
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.LastUsedAt = sess.LastUsedAt.UTC()
	return &sess, nil
}
