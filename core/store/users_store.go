package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	UserStatusActive  = "active"
	UserStatusBlocked = "blocked"
	UserStatusPending = "pending"
)

type User struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Salt                string     `json:"-"`
	Role                string     `json:"role"`
	Status              string     `json:"status"`
	FirstName           string     `json:"firstName,omitempty"`
	LastName            string     `json:"lastName,omitempty"`
	Department          string     `json:"department,omitempty"`
	FailedLoginAttempts int        `json:"failedLoginAttempts"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
	LastLoginIP         string     `json:"lastLoginIP,omitempty"`
	PasswordChangedAt   *time.Time `json:"passwordChangedAt,omitempty"`
	CreatedBy           *string    `json:"createdBy,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// UserSummary is the populated form of a user reference.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type UserFilter struct {
	Role   string
	Status string
	Search string
	Limit  int
	Offset int
}

type UsersStore interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter UserFilter) ([]User, int, error)
	Summaries(ctx context.Context, ids []string) (map[string]UserSummary, error)
}

type usersStore struct {
	db *DB
}

func NewUsersStore(db *DB) UsersStore {
	return &usersStore{db: db}
}

const userColumns = `id, username, email, password_hash, salt, role, status, first_name, last_name, department, failed_login_attempts, last_login, last_login_ip, password_changed_at, created_by, created_at, updated_at`

func (s *usersStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Salt, u.Role, u.Status, u.FirstName, u.LastName, u.Department,
		u.FailedLoginAttempts, nullTime(u.LastLogin), u.LastLoginIP, nullTime(u.PasswordChangedAt), nullString(u.CreatedBy),
		u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *usersStore) Get(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (s *usersStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, strings.ToLower(strings.TrimSpace(email))))
}

func (s *usersStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, strings.TrimSpace(username)))
}

func (s *usersStore) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email=? OR username=?`, email, username).Scan(&n)
	return n > 0, err
}

func (s *usersStore) Update(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET username=?, email=?, password_hash=?, salt=?, role=?, status=?, first_name=?, last_name=?, department=?, failed_login_attempts=?, last_login=?, last_login_ip=?, password_changed_at=?, updated_at=? WHERE id=?`,
		u.Username, u.Email, u.PasswordHash, u.Salt, u.Role, u.Status, u.FirstName, u.LastName, u.Department,
		u.FailedLoginAttempts, nullTime(u.LastLogin), u.LastLoginIP, nullTime(u.PasswordChangedAt), u.UpdatedAt.UTC(), u.ID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *usersStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *usersStore) List(ctx context.Context, filter UserFilter) ([]User, int, error) {
	var clauses []string
	var args []any
	if filter.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, filter.Role)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, filter.Status)
	}
	if strings.TrimSpace(filter.Search) != "" {
		clauses = append(clauses, "(LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?)")
		q := likePattern(filter.Search)
		args = append(args, q, q, q, q)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + userColumns + ` FROM users` + where + ` ORDER BY created_at DESC` + limitOffset(filter.Limit, filter.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []User
	for rows.Next() {
		u, err := s.scanUserRow(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, *u)
	}
	return res, total, rows.Err()
}

func (s *usersStore) Summaries(ctx context.Context, ids []string) (map[string]UserSummary, error) {
	out := map[string]UserSummary{}
	uniq := map[string]struct{}{}
	var args []any
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := uniq[id]; ok {
			continue
		}
		uniq[id] = struct{}{}
		args = append(args, id)
	}
	if len(args) == 0 {
		return out, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(args)), ",")
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, email FROM users WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sum UserSummary
		if err := rows.Scan(&sum.ID, &sum.Username, &sum.Email); err != nil {
			return nil, err
		}
		out[sum.ID] = sum
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *usersStore) scanUser(row *sql.Row) (*User, error) {
	u, err := s.scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (s *usersStore) scanUserRow(row rowScanner) (*User, error) {
	var u User
	var lastLogin, pwChanged sql.NullTime
	var createdBy sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Salt, &u.Role, &u.Status, &u.FirstName, &u.LastName,
		&u.Department, &u.FailedLoginAttempts, &lastLogin, &u.LastLoginIP, &pwChanged, &createdBy, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.LastLogin = timePtr(lastLogin)
	u.PasswordChangedAt = timePtr(pwChanged)
	u.CreatedBy = stringPtr(createdBy)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func limitOffset(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	q := " LIMIT " + itoa(limit)
	if offset > 0 {
		q += " OFFSET " + itoa(offset)
	}
	return q
}
