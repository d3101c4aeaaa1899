package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
	StatusRejected   = "rejected"
)

type EvidenceFile struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	URL          string    `json:"url"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

type ActivityEntry struct {
	ID          int64     `json:"-"`
	IncidentID  string    `json:"-"`
	Action      string    `json:"action"`
	PerformedBy string    `json:"performedBy"`
	Details     string    `json:"details,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type Incident struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	Priority        string          `json:"priority"`
	Severity        int             `json:"severity"`
	Status          string          `json:"status"`
	ReportedBy      string          `json:"reportedBy"`
	AssignedTo      *string         `json:"assignedTo,omitempty"`
	EvidenceFiles   []EvidenceFile  `json:"evidenceFiles"`
	ResolutionNotes string          `json:"resolutionNotes,omitempty"`
	ResolvedAt      *time.Time      `json:"resolvedAt,omitempty"`
	ResolvedBy      *string         `json:"resolvedBy,omitempty"`
	ResolutionTime  *int            `json:"resolutionTime,omitempty"`
	IncidentDate    *time.Time      `json:"incidentDate,omitempty"`
	IPAddress       string          `json:"ipAddress,omitempty"`
	UserAgent       string          `json:"userAgent,omitempty"`
	Tags            []string        `json:"tags"`
	ActivityLog     []ActivityEntry `json:"activityLog,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`

	Reporter *UserSummary `json:"reporter,omitempty"`
	Assignee *UserSummary `json:"assignee,omitempty"`
}

type IncidentFilter struct {
	ReportedBy string
	AssignedTo string
	Status     string
	Category   string
	Priority   string
	Search     string
	DateFrom   *time.Time
	DateTo     *time.Time
	SortBy     string
	Limit      int
	Offset     int
}

type IncidentsStore interface {
	Create(ctx context.Context, inc *Incident) error
	Get(ctx context.Context, id string) (*Incident, error)
	Update(ctx context.Context, inc *Incident) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter IncidentFilter) ([]Incident, int, error)
	AddActivity(ctx context.Context, entry ActivityEntry) error
	ListActivity(ctx context.Context, incidentID string) ([]ActivityEntry, error)
}

type incidentsStore struct {
	db *DB
}

func NewIncidentsStore(db *DB) IncidentsStore {
	return &incidentsStore{db: db}
}

const incidentColumns = `id, title, description, category, priority, severity, status, reported_by, assigned_to, evidence_json, resolution_notes, resolved_at, resolved_by, resolution_time, incident_date, ip_address, user_agent, tags_json, created_at, updated_at`

var incidentSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"priority":  "priority",
	"severity":  "severity",
	"status":    "status",
	"title":     "title",
}

// SortClause turns a "-field" style sort key into ORDER BY. Unknown fields
// fall back to newest first.
func SortClause(sortBy string) string {
	key := strings.TrimSpace(sortBy)
	dir := "ASC"
	if strings.HasPrefix(key, "-") {
		dir = "DESC"
		key = key[1:]
	}
	col, ok := incidentSortColumns[key]
	if !ok {
		return " ORDER BY created_at DESC, id DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir)
}

func (s *incidentsStore) Create(ctx context.Context, inc *Incident) error {
	evidence, tags, err := encodeIncidentJSON(inc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO incidents(`+incidentColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		inc.ID, inc.Title, inc.Description, inc.Category, inc.Priority, inc.Severity, inc.Status, inc.ReportedBy,
		nullString(inc.AssignedTo), evidence, inc.ResolutionNotes, nullTime(inc.ResolvedAt), nullString(inc.ResolvedBy),
		nullInt(inc.ResolutionTime), nullTime(inc.IncidentDate), inc.IPAddress, inc.UserAgent, tags,
		inc.CreatedAt.UTC(), inc.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *incidentsStore) Get(ctx context.Context, id string) (*Incident, error) {
	inc, err := scanIncident(s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	inc.ActivityLog, err = s.ListActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	return inc, nil
}

func (s *incidentsStore) Update(ctx context.Context, inc *Incident) error {
	evidence, tags, err := encodeIncidentJSON(inc)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE incidents SET title=?, description=?, category=?, priority=?, severity=?, status=?, assigned_to=?, evidence_json=?, resolution_notes=?, resolved_at=?, resolved_by=?, resolution_time=?, incident_date=?, tags_json=?, updated_at=? WHERE id=?`,
		inc.Title, inc.Description, inc.Category, inc.Priority, inc.Severity, inc.Status, nullString(inc.AssignedTo),
		evidence, inc.ResolutionNotes, nullTime(inc.ResolvedAt), nullString(inc.ResolvedBy), nullInt(inc.ResolutionTime),
		nullTime(inc.IncidentDate), tags, inc.UpdatedAt.UTC(), inc.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *incidentsStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM incident_activity WHERE incident_id=?`, id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM incidents WHERE id=?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *incidentsStore) List(ctx context.Context, filter IncidentFilter) ([]Incident, int, error) {
	where, args := incidentWhere(filter)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents` + where + SortClause(filter.SortBy) + limitOffset(filter.Limit, filter.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	res := []Incident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, *inc)
	}
	return res, total, rows.Err()
}

func incidentWhere(filter IncidentFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, vals ...any) {
		clauses = append(clauses, clause)
		args = append(args, vals...)
	}
	if filter.ReportedBy != "" {
		add("reported_by=?", filter.ReportedBy)
	}
	if filter.AssignedTo != "" {
		add("assigned_to=?", filter.AssignedTo)
	}
	if filter.Status != "" {
		add("status=?", filter.Status)
	}
	if filter.Category != "" {
		add("category=?", filter.Category)
	}
	if filter.Priority != "" {
		add("priority=?", filter.Priority)
	}
	if strings.TrimSpace(filter.Search) != "" {
		q := likePattern(filter.Search)
		add("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", q, q)
	}
	if filter.DateFrom != nil {
		add("created_at>=?", filter.DateFrom.UTC())
	}
	if filter.DateTo != nil {
		add("created_at<=?", filter.DateTo.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *incidentsStore) AddActivity(ctx context.Context, entry ActivityEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO incident_activity(incident_id, action, performed_by, details, created_at) VALUES(?,?,?,?,?)`,
		entry.IncidentID, entry.Action, entry.PerformedBy, entry.Details, ts.UTC())
	return err
}

func (s *incidentsStore) ListActivity(ctx context.Context, incidentID string) ([]ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, incident_id, action, performed_by, details, created_at FROM incident_activity WHERE incident_id=? ORDER BY id ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ActivityEntry
	for rows.Next() {
		var a ActivityEntry
		if err := rows.Scan(&a.ID, &a.IncidentID, &a.Action, &a.PerformedBy, &a.Details, &a.Timestamp); err != nil {
			return nil, err
		}
		a.Timestamp = a.Timestamp.UTC()
		res = append(res, a)
	}
	return res, rows.Err()
}

func encodeIncidentJSON(inc *Incident) (string, string, error) {
	evidence := inc.EvidenceFiles
	if evidence == nil {
		evidence = []EvidenceFile{}
	}
	tags := inc.Tags
	if tags == nil {
		tags = []string{}
	}
	ev, err := json.Marshal(evidence)
	if err != nil {
		return "", "", err
	}
	tg, err := json.Marshal(tags)
	if err != nil {
		return "", "", err
	}
	return string(ev), string(tg), nil
}

func scanIncident(row rowScanner) (*Incident, error) {
	var inc Incident
	var assigned, resolvedBy sql.NullString
	var resolvedAt, incidentDate sql.NullTime
	var resolutionTime sql.NullInt64
	var evidence, tags string
	if err := row.Scan(&inc.ID, &inc.Title, &inc.Description, &inc.Category, &inc.Priority, &inc.Severity, &inc.Status,
		&inc.ReportedBy, &assigned, &evidence, &inc.ResolutionNotes, &resolvedAt, &resolvedBy, &resolutionTime,
		&incidentDate, &inc.IPAddress, &inc.UserAgent, &tags, &inc.CreatedAt, &inc.UpdatedAt); err != nil {
		return nil, err
	}
	inc.AssignedTo = stringPtr(assigned)
	inc.ResolvedBy = stringPtr(resolvedBy)
	inc.ResolvedAt = timePtr(resolvedAt)
	inc.IncidentDate = timePtr(incidentDate)
	if resolutionTime.Valid {
		v := int(resolutionTime.Int64)
		inc.ResolutionTime = &v
	}
	inc.CreatedAt = inc.CreatedAt.UTC()
	inc.UpdatedAt = inc.UpdatedAt.UTC()
	inc.EvidenceFiles = []EvidenceFile{}
	inc.Tags = []string{}
	if evidence != "" {
		if err := json.Unmarshal([]byte(evidence), &inc.EvidenceFiles); err != nil {
			return nil, fmt.Errorf("decode evidence of %s: %w", inc.ID, err)
		}
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &inc.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", inc.ID, err)
		}
	}
	return &inc, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}
