package audit

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"incidentdesk/core/store"
	"incidentdesk/core/utils"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ActionIncidentCreated       = "incident_created"
	ActionIncidentUpdated       = "incident_updated"
	ActionIncidentDeleted       = "incident_deleted"
	ActionIncidentStatusChanged = "incident_status_changed"
	ActionIncidentAssigned      = "incident_assigned"
	ActionIncidentResolved      = "incident_resolved"
	ActionUserCreated           = "user_created"
	ActionUserUpdated           = "user_updated"
	ActionUserDeleted           = "user_deleted"
	ActionUserRoleChanged       = "user_role_changed"
	ActionUserBlocked           = "user_blocked"
	ActionUserUnblocked         = "user_unblocked"
	ActionLoginSuccess          = "login_success"
	ActionLoginFailed           = "login_failed"
	ActionLogout                = "logout"
	ActionPasswordChanged       = "password_changed"
	ActionPasswordResetRequest  = "password_reset_requested"
	ActionTokenRefreshed        = "token_refreshed"
	ActionBulkStatusUpdate      = "bulk_status_update"
	ActionBulkAssign            = "bulk_assign"
	ActionDataExport            = "data_export"
	ActionSettingsChanged       = "settings_changed"
	ActionFileUploaded          = "file_uploaded"
	ActionFileDeleted           = "file_deleted"
	ActionSystemError           = "system_error"
)

const (
	TargetIncident = "incident"
	TargetUser     = "user"
	TargetSystem   = "system"
	TargetFile     = "file"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPartial = "partial"
)

const maxDescription = 500

// Entry is what callers hand to Record. Request metadata comes from ctx.
type Entry struct {
	Action       string
	PerformedBy  string
	UserRole     string
	TargetType   string
	TargetID     string
	Before       any
	After        any
	Description  string
	Metadata     map[string]any
	Status       string
	ErrorMessage string
}

// Forwarder ships persisted records to an external sink.
type Forwarder interface {
	Forward(ctx context.Context, rec *store.AuditLog)
	Close()
}

// GeoLookup resolves a client IP to an ISO country code.
type GeoLookup interface {
	Country(ip string) string
}

type Recorder struct {
	store     store.AuditStore
	logger    *utils.Logger
	forwarder Forwarder
	geo       GeoLookup
	failures  prometheus.Counter
	now       func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

type Option func(*Recorder)

func WithForwarder(f Forwarder) Option {
	return func(r *Recorder) { r.forwarder = f }
}

func WithGeoLookup(g GeoLookup) Option {
	return func(r *Recorder) { r.geo = g }
}

func WithFailureCounter(c prometheus.Counter) Option {
	return func(r *Recorder) { r.failures = c }
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func NewRecorder(audits store.AuditStore, logger *utils.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		store:   audits,
		logger:  logger,
		now:     utils.NowUTC,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) newID(at time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), r.entropy).String()
}

// Record persists one audit record. Failures are logged and counted, never
// returned: the audited action has already happened.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.store == nil {
		return
	}
	rec := r.build(ctx, e)
	if err := r.store.Insert(ctx, rec); err != nil {
		if r.failures != nil {
			r.failures.Inc()
		}
		r.logger.Errorf("audit write failed action=%s target=%s/%s: %v", rec.Action, rec.TargetType, valueOr(rec.TargetID), err)
		return
	}
	if r.forwarder != nil {
		r.forwarder.Forward(ctx, rec)
	}
}

func (r *Recorder) build(ctx context.Context, e Entry) *store.AuditLog {
	at := r.now().UTC()
	req := RequestFrom(ctx)
	rec := &store.AuditLog{
		ID:            r.newID(at),
		Action:        e.Action,
		UserRole:      e.UserRole,
		TargetType:    e.TargetType,
		IPAddress:     req.IP,
		UserAgent:     req.UserAgent,
		RequestMethod: req.Method,
		RequestURL:    req.URL,
		Description:   truncate(e.Description, maxDescription),
		Status:        e.Status,
		ErrorMessage:  e.ErrorMessage,
		Timestamp:     at,
	}
	if rec.Status == "" {
		rec.Status = StatusSuccess
	}
	if rec.TargetType == "" {
		rec.TargetType = TargetSystem
	}
	if e.PerformedBy != "" {
		v := e.PerformedBy
		rec.PerformedBy = &v
	}
	if e.TargetID != "" {
		v := e.TargetID
		rec.TargetID = &v
	}
	if e.Before != nil || e.After != nil {
		changes := map[string]any{}
		if e.Before != nil {
			changes["before"] = e.Before
		}
		if e.After != nil {
			changes["after"] = e.After
		}
		rec.Changes = r.marshal(changes)
	}
	meta := e.Metadata
	if r.geo != nil && req.IP != "" && (e.Action == ActionLoginSuccess || e.Action == ActionLoginFailed) {
		if country := r.geo.Country(req.IP); country != "" {
			meta = withKey(meta, "country", country)
		}
	}
	if len(meta) > 0 {
		rec.Metadata = r.marshal(meta)
	}
	return rec
}

func (r *Recorder) marshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		r.logger.Warnf("audit payload encode: %v", err)
		return nil
	}
	return raw
}

func withKey(m map[string]any, k string, v any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for key, val := range m {
		out[key] = val
	}
	out[k] = v
	return out
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func valueOr(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

// Close releases the forwarder, if any.
func (r *Recorder) Close() {
	if r != nil && r.forwarder != nil {
		r.forwarder.Close()
	}
}
