package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"incidentdesk/core/store"
	"incidentdesk/core/store/storetest"
	"incidentdesk/core/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type failingStore struct {
	store.AuditStore
}

func (failingStore) Insert(context.Context, *store.AuditLog) error {
	return errors.New("disk full")
}

type captureForwarder struct {
	recs []*store.AuditLog
}

func (c *captureForwarder) Forward(_ context.Context, rec *store.AuditLog) { c.recs = append(c.recs, rec) }
func (c *captureForwarder) Close()                                         {}

type staticGeo string

func (g staticGeo) Country(string) string { return string(g) }

func TestRecordPersistsRequestMetadata(t *testing.T) {
	db := storetest.NewDB(t)
	audits := store.NewAuditStore(db)
	fwd := &captureForwarder{}
	rec := NewRecorder(audits, utils.NewLogger(), WithForwarder(fwd), WithGeoLookup(staticGeo("DE")))

	ctx := WithRequest(context.Background(), RequestInfo{IP: "203.0.113.7", UserAgent: "curl/8", Method: "POST", URL: "/api/v1/auth/login"})
	rec.Record(ctx, Entry{Action: ActionLoginSuccess, PerformedBy: "u1", UserRole: "user", TargetType: TargetUser, TargetID: "u1"})
	rec.Record(ctx, Entry{Action: ActionIncidentUpdated, PerformedBy: "u1", TargetType: TargetIncident, TargetID: "i1",
		Before: map[string]any{"title": "old"}, After: map[string]any{"title": "new"}, Description: strings.Repeat("x", 600)})

	items, total, err := audits.List(context.Background(), store.AuditFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 records, got %d", total)
	}
	login := items[1]
	if login.Action != ActionLoginSuccess || login.IPAddress != "203.0.113.7" || login.RequestMethod != "POST" {
		t.Fatalf("unexpected login record %+v", login)
	}
	var meta map[string]any
	if err := json.Unmarshal(login.Metadata, &meta); err != nil || meta["country"] != "DE" {
		t.Fatalf("expected country metadata, got %s %v", login.Metadata, err)
	}
	update := items[0]
	var changes map[string]map[string]any
	if err := json.Unmarshal(update.Changes, &changes); err != nil {
		t.Fatalf("changes: %v", err)
	}
	if changes["before"]["title"] != "old" || changes["after"]["title"] != "new" {
		t.Fatalf("unexpected changes %v", changes)
	}
	if len(update.Description) != maxDescription {
		t.Fatalf("expected description truncated to %d, got %d", maxDescription, len(update.Description))
	}
	if update.Metadata != nil {
		t.Fatalf("geo enrichment applies to logins only, got %s", update.Metadata)
	}
	if len(fwd.recs) != 2 {
		t.Fatalf("expected 2 forwarded records, got %d", len(fwd.recs))
	}
	if items[0].ID <= items[1].ID {
		t.Fatalf("expected time-sortable ids, got %s then %s", items[1].ID, items[0].ID)
	}
}

func TestRecordFailureIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_audit_failures_total"})
	fwd := &captureForwarder{}
	rec := NewRecorder(failingStore{}, utils.NewLoggerTo(&buf), WithFailureCounter(counter), WithForwarder(fwd))
	rec.Record(context.Background(), Entry{Action: ActionLogout, TargetType: TargetUser})
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Fatalf("expected failure counter 1, got %v", got)
	}
	if !strings.Contains(buf.String(), "audit write failed") {
		t.Fatalf("expected failure log, got %q", buf.String())
	}
	if len(fwd.recs) != 0 {
		t.Fatalf("failed records must not be forwarded")
	}
}

func TestRecordDefaults(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := NewRecorder(nil, utils.NewLogger(), WithClock(func() time.Time { return fixed }))
	got := rec.build(context.Background(), Entry{Action: ActionSystemError})
	if got.Status != StatusSuccess || got.TargetType != TargetSystem {
		t.Fatalf("unexpected defaults %+v", got)
	}
	if !got.Timestamp.Equal(fixed) || got.PerformedBy != nil || got.TargetID != nil {
		t.Fatalf("unexpected record %+v", got)
	}
	rec.Record(context.Background(), Entry{Action: ActionSystemError})
}

func TestQueryAttachesPerformers(t *testing.T) {
	db := storetest.NewDB(t)
	users := store.NewUsersStore(db)
	now := time.Now().UTC()
	if err := users.Create(context.Background(), &store.User{ID: "u1", Username: "alice", Email: "alice@example.com", PasswordHash: "h", Salt: "s", Role: "user", Status: store.UserStatusActive, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("user: %v", err)
	}
	audits := store.NewAuditStore(db)
	rec := NewRecorder(audits, utils.NewLogger())
	for i := 0; i < 3; i++ {
		rec.Record(context.Background(), Entry{Action: ActionLoginSuccess, PerformedBy: "u1", TargetType: TargetUser, TargetID: "u1"})
	}
	rec.Record(context.Background(), Entry{Action: ActionLoginFailed, TargetType: TargetUser})

	q := NewQuery(audits, users)
	items, pag, err := q.List(context.Background(), store.AuditFilter{Action: ActionLoginSuccess}, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if pag.TotalCount != 3 || pag.TotalPages != 2 || len(items) != 2 {
		t.Fatalf("unexpected page %+v with %d items", pag, len(items))
	}
	if items[0].Performer == nil || items[0].Performer.Username != "alice" {
		t.Fatalf("expected performer summary, got %+v", items[0].Performer)
	}
	got, err := q.Get(context.Background(), items[1].ID)
	if err != nil || got.Performer == nil {
		t.Fatalf("get: %+v %v", got, err)
	}
	if _, err := q.Get(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
