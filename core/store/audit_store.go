package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type AuditLog struct {
	ID            string          `json:"id"`
	Action        string          `json:"action"`
	PerformedBy   *string         `json:"performedBy,omitempty"`
	UserRole      string          `json:"userRole,omitempty"`
	TargetType    string          `json:"targetType"`
	TargetID      *string         `json:"targetId,omitempty"`
	Changes       json.RawMessage `json:"changes,omitempty"`
	IPAddress     string          `json:"ipAddress,omitempty"`
	UserAgent     string          `json:"userAgent,omitempty"`
	RequestMethod string          `json:"requestMethod,omitempty"`
	RequestURL    string          `json:"requestUrl,omitempty"`
	Description   string          `json:"description,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	Status        string          `json:"status"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`

	Performer *UserSummary `json:"performer,omitempty"`
}

type AuditFilter struct {
	Action      string
	PerformedBy string
	TargetType  string
	TargetID    string
	IPAddress   string
	StartDate   *time.Time
	EndDate     *time.Time
	Limit       int
	Offset      int
}

type AuditStore interface {
	Insert(ctx context.Context, rec *AuditLog) error
	Get(ctx context.Context, id string) (*AuditLog, error)
	List(ctx context.Context, filter AuditFilter) ([]AuditLog, int, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditStore struct {
	db *DB
}

func NewAuditStore(db *DB) AuditStore {
	return &auditStore{db: db}
}

const auditColumns = `id, action, performed_by, user_role, target_type, target_id, changes_json, ip_address, user_agent, request_method, request_url, description, metadata_json, status, error_message, logged_at`

func (s *auditStore) Insert(ctx context.Context, rec *AuditLog) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_logs(`+auditColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.Action, nullString(rec.PerformedBy), rec.UserRole, rec.TargetType, nullString(rec.TargetID),
		nullJSON(rec.Changes), rec.IPAddress, rec.UserAgent, rec.RequestMethod, rec.RequestURL, rec.Description,
		nullJSON(rec.Metadata), rec.Status, rec.ErrorMessage, rec.Timestamp.UTC())
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *auditStore) Get(ctx context.Context, id string) (*AuditLog, error) {
	rec, err := scanAudit(s.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_logs WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *auditStore) List(ctx context.Context, filter AuditFilter) ([]AuditLog, int, error) {
	var clauses []string
	var args []any
	add := func(clause string, v any) {
		clauses = append(clauses, clause)
		args = append(args, v)
	}
	if filter.Action != "" {
		add("action=?", filter.Action)
	}
	if filter.PerformedBy != "" {
		add("performed_by=?", filter.PerformedBy)
	}
	if filter.TargetType != "" {
		add("target_type=?", filter.TargetType)
	}
	if filter.TargetID != "" {
		add("target_id=?", filter.TargetID)
	}
	if filter.IPAddress != "" {
		add("ip_address=?", filter.IPAddress)
	}
	if filter.StartDate != nil {
		add("logged_at>=?", filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		add("logged_at<=?", filter.EndDate.UTC())
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	// ULIDs sort by creation time, so id breaks ties inside one timestamp.
	query := `SELECT ` + auditColumns + ` FROM audit_logs` + where + ` ORDER BY logged_at DESC, id DESC` + limitOffset(filter.Limit, filter.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	res := []AuditLog{}
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, *rec)
	}
	return res, total, rows.Err()
}

func (s *auditStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE logged_at<?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanAudit(row rowScanner) (*AuditLog, error) {
	var rec AuditLog
	var performedBy, userRole, targetID, changes, metadata sql.NullString
	if err := row.Scan(&rec.ID, &rec.Action, &performedBy, &userRole, &rec.TargetType, &targetID, &changes,
		&rec.IPAddress, &rec.UserAgent, &rec.RequestMethod, &rec.RequestURL, &rec.Description, &metadata,
		&rec.Status, &rec.ErrorMessage, &rec.Timestamp); err != nil {
		return nil, err
	}
	rec.PerformedBy = stringPtr(performedBy)
	rec.UserRole = userRole.String
	rec.TargetID = stringPtr(targetID)
	if changes.Valid && changes.String != "" {
		rec.Changes = json.RawMessage(changes.String)
	}
	if metadata.Valid && metadata.String != "" {
		rec.Metadata = json.RawMessage(metadata.String)
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return &rec, nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}
