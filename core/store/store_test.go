package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"incidentdesk/config"
	"incidentdesk/core/utils"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	cfg := &config.AppConfig{DBDriver: DialectSQLite, DBPath: filepath.Join(t.TempDir(), "test.db")}
	logger := utils.NewLogger()
	db, err := NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, users UsersStore, id, username, role string) *User {
	t.Helper()
	now := time.Now().UTC()
	u := &User{
		ID:           id,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Salt:         "salt",
		Role:         role,
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func seedIncident(t *testing.T, incidents IncidentsStore, id, reporter, status string, created time.Time) *Incident {
	t.Helper()
	inc := &Incident{
		ID:          id,
		Title:       "Incident " + id,
		Description: "Description for incident " + id,
		Category:    "phishing",
		Priority:    "medium",
		Severity:    5,
		Status:      status,
		ReportedBy:  reporter,
		Tags:        []string{"mail"},
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	if err := incidents.Create(context.Background(), inc); err != nil {
		t.Fatalf("create incident %s: %v", id, err)
	}
	return inc
}

func TestUsersStoreUniqueness(t *testing.T) {
	db := newTestDB(t)
	users := NewUsersStore(db)
	seedUser(t, users, "u1", "alice", "user")
	now := time.Now().UTC()
	err := users.Create(context.Background(), &User{ID: "u2", Username: "alice", Email: "other@example.com", PasswordHash: "h", Salt: "s", Role: "user", Status: UserStatusActive, CreatedAt: now, UpdatedAt: now})
	if err != ErrConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	exists, err := users.ExistsByEmailOrUsername(context.Background(), "nobody@example.com", "alice")
	if err != nil || !exists {
		t.Fatalf("expected existing identity, got %v %v", exists, err)
	}
	got, err := users.FindByEmail(context.Background(), " ALICE@example.com ")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if got.ID != "u1" {
		t.Fatalf("expected u1, got %s", got.ID)
	}
	if _, err := users.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUsersStoreUpdateAndList(t *testing.T) {
	db := newTestDB(t)
	users := NewUsersStore(db)
	u := seedUser(t, users, "u1", "alice", "user")
	seedUser(t, users, "u2", "bob", "admin")
	seedUser(t, users, "u3", "carol", "admin")

	login := time.Now().UTC().Truncate(time.Second)
	u.FailedLoginAttempts = 3
	u.Status = UserStatusBlocked
	u.LastLogin = &login
	u.LastLoginIP = "10.0.0.1"
	u.UpdatedAt = login
	if err := users.Update(context.Background(), u); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := users.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != UserStatusBlocked || got.FailedLoginAttempts != 3 {
		t.Fatalf("unexpected user after update: %+v", got)
	}
	if got.LastLogin == nil || !got.LastLogin.Equal(login) {
		t.Fatalf("expected last login %s, got %v", login, got.LastLogin)
	}

	admins, total, err := users.List(context.Background(), UserFilter{Role: "admin", Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(admins) != 1 {
		t.Fatalf("expected 2 admins total with page of 1, got %d/%d", total, len(admins))
	}
	found, _, err := users.List(context.Background(), UserFilter{Search: "CAR"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].Username != "carol" {
		t.Fatalf("expected carol, got %+v", found)
	}
	sums, err := users.Summaries(context.Background(), []string{"u1", "u2", "u1", "", "missing"})
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(sums) != 2 || sums["u2"].Username != "bob" {
		t.Fatalf("unexpected summaries %+v", sums)
	}
}

func TestSessionsStoreInvalidation(t *testing.T) {
	db := newTestDB(t)
	users := NewUsersStore(db)
	sessions := NewSessionsStore(db)
	seedUser(t, users, "u1", "alice", "user")
	now := time.Now().UTC()
	for _, id := range []string{"s1", "s2"} {
		if err := sessions.Save(context.Background(), &Session{ID: id, UserID: "u1", RefreshTokenHash: "h-" + id, IsValid: true, ExpiresAt: now.Add(time.Hour), CreatedAt: now, LastUsedAt: now}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := sessions.Save(context.Background(), &Session{ID: "old", UserID: "u1", RefreshTokenHash: "h", IsValid: true, ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour), LastUsedAt: now}); err != nil {
		t.Fatalf("save expired: %v", err)
	}
	active, err := sessions.ListActiveForUser(context.Background(), "u1", now)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active sessions, got %d", len(active))
	}
	if err := sessions.Invalidate(context.Background(), "s1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	s1, err := sessions.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s1.IsValid {
		t.Fatalf("expected s1 invalid")
	}
	n, err := sessions.InvalidateAllForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows invalidated (s2 and expired), got %d", n)
	}
	purged, err := sessions.PurgeExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 3 {
		t.Fatalf("expected 3 purged, got %d", purged)
	}
	if _, err := sessions.Get(context.Background(), "s2"); err != ErrNotFound {
		t.Fatalf("expected not found after purge, got %v", err)
	}
}

func TestIncidentsStoreRoundTripAndFilters(t *testing.T) {
	db := newTestDB(t)
	incidents := NewIncidentsStore(db)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedIncident(t, incidents, "i1", "u1", StatusOpen, base)
	seedIncident(t, incidents, "i2", "u2", StatusResolved, base.Add(time.Hour))
	inc := seedIncident(t, incidents, "i3", "u1", StatusInProgress, base.Add(2*time.Hour))

	assignee := "admin1"
	minutes := 42
	resolved := base.Add(3 * time.Hour)
	inc.AssignedTo = &assignee
	inc.ResolutionTime = &minutes
	inc.ResolvedAt = &resolved
	inc.EvidenceFiles = []EvidenceFile{{Filename: "1-abc.png", OriginalName: "shot.png", MimeType: "image/png", Size: 10, URL: "/uploads/evidence/1-abc.png", UploadedAt: base}}
	inc.UpdatedAt = resolved
	if err := incidents.Update(context.Background(), inc); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := incidents.AddActivity(context.Background(), ActivityEntry{IncidentID: "i3", Action: "assigned", PerformedBy: "admin1", Timestamp: resolved}); err != nil {
		t.Fatalf("activity: %v", err)
	}
	got, err := incidents.Get(context.Background(), "i3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AssignedTo == nil || *got.AssignedTo != "admin1" {
		t.Fatalf("expected assignee admin1, got %v", got.AssignedTo)
	}
	if got.ResolutionTime == nil || *got.ResolutionTime != 42 {
		t.Fatalf("expected resolution 42, got %v", got.ResolutionTime)
	}
	if len(got.EvidenceFiles) != 1 || got.EvidenceFiles[0].OriginalName != "shot.png" {
		t.Fatalf("unexpected evidence %+v", got.EvidenceFiles)
	}
	if len(got.Tags) != 1 || len(got.ActivityLog) != 1 {
		t.Fatalf("expected tags and activity, got %v %v", got.Tags, got.ActivityLog)
	}

	mine, total, err := incidents.List(context.Background(), IncidentFilter{ReportedBy: "u1", SortBy: "createdAt"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || mine[0].ID != "i1" || mine[1].ID != "i3" {
		t.Fatalf("unexpected own incidents %d %+v", total, mine)
	}
	all, total, err := incidents.List(context.Background(), IncidentFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if total != 3 || len(all) != 2 || all[0].ID != "i3" {
		t.Fatalf("expected newest first page, got %d %+v", total, all)
	}
	searched, _, err := incidents.List(context.Background(), IncidentFilter{Search: "incident i2"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(searched) != 1 || searched[0].ID != "i2" {
		t.Fatalf("expected i2 from search, got %+v", searched)
	}
	from := base.Add(30 * time.Minute)
	ranged, _, err := incidents.List(context.Background(), IncidentFilter{DateFrom: &from})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(ranged) != 2 {
		t.Fatalf("expected 2 incidents after %s, got %d", from, len(ranged))
	}

	if err := incidents.Delete(context.Background(), "i3"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := incidents.Get(context.Background(), "i3"); err != ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := incidents.Delete(context.Background(), "i3"); err != ErrNotFound {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestSortClause(t *testing.T) {
	cases := map[string]string{
		"":           " ORDER BY created_at DESC, id DESC",
		"-createdAt": " ORDER BY created_at DESC, id DESC",
		"severity":   " ORDER BY severity ASC, id ASC",
		"-title":     " ORDER BY title DESC, id DESC",
		"password":   " ORDER BY created_at DESC, id DESC",
	}
	for in, want := range cases {
		if got := SortClause(in); got != want {
			t.Fatalf("sort %q: expected %q, got %q", in, want, got)
		}
	}
}

func TestAuditStoreListAndPurge(t *testing.T) {
	db := newTestDB(t)
	audit := NewAuditStore(db)
	actor := "u1"
	now := time.Now().UTC()
	recs := []AuditLog{
		{ID: "01A", Action: "login_success", PerformedBy: &actor, TargetType: "user", Status: "success", Timestamp: now.Add(-3 * 365 * 24 * time.Hour)},
		{ID: "01B", Action: "incident_created", PerformedBy: &actor, TargetType: "incident", Status: "success", Changes: []byte(`{"after":{"title":"x"}}`), Timestamp: now.Add(-time.Hour)},
		{ID: "01C", Action: "login_failed", TargetType: "user", Status: "failed", IPAddress: "10.0.0.9", Timestamp: now},
	}
	for i := range recs {
		if err := audit.Insert(context.Background(), &recs[i]); err != nil {
			t.Fatalf("insert %s: %v", recs[i].ID, err)
		}
	}
	list, total, err := audit.List(context.Background(), AuditFilter{PerformedBy: "u1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || list[0].ID != "01B" {
		t.Fatalf("expected newest of u1 first, got %d %+v", total, list)
	}
	if string(list[0].Changes) != `{"after":{"title":"x"}}` {
		t.Fatalf("unexpected changes %s", list[0].Changes)
	}
	byIP, _, err := audit.List(context.Background(), AuditFilter{IPAddress: "10.0.0.9"})
	if err != nil || len(byIP) != 1 || byIP[0].PerformedBy != nil {
		t.Fatalf("expected anonymous failure by ip, got %+v %v", byIP, err)
	}
	purged, err := audit.PurgeBefore(context.Background(), now.Add(-2*365*24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}
	if _, err := audit.Get(context.Background(), "01A"); err != ErrNotFound {
		t.Fatalf("expected purged record gone, got %v", err)
	}
}

func TestAnalyticsStoreAggregates(t *testing.T) {
	db := newTestDB(t)
	users := NewUsersStore(db)
	incidents := NewIncidentsStore(db)
	analytics := NewAnalyticsStore(db)
	u := seedUser(t, users, "u1", "alice", "user")
	seedUser(t, users, "u2", "bob", "admin")
	login := time.Now().UTC()
	u.LastLogin = &login
	u.UpdatedAt = login
	if err := users.Update(context.Background(), u); err != nil {
		t.Fatalf("update: %v", err)
	}
	now := time.Now().UTC()
	seedIncident(t, incidents, "i1", "u1", StatusOpen, now.Add(-2*time.Hour))
	seedIncident(t, incidents, "i2", "u1", StatusOpen, now.Add(-time.Hour))
	r := seedIncident(t, incidents, "i3", "u2", StatusResolved, now.Add(-time.Hour))
	for i, minutes := range []int{30, 90} {
		inc := r
		if i == 1 {
			inc = seedIncident(t, incidents, "i4", "u2", StatusResolved, now.Add(-3*time.Hour))
		}
		m := minutes
		at := now
		inc.ResolutionTime = &m
		inc.ResolvedAt = &at
		if err := incidents.Update(context.Background(), inc); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	total, err := analytics.CountIncidents(context.Background())
	if err != nil || total != 4 {
		t.Fatalf("expected 4 incidents, got %d %v", total, err)
	}
	byStatus, err := analytics.CountIncidentsBy(context.Background(), "status")
	if err != nil {
		t.Fatalf("by status: %v", err)
	}
	if byStatus[StatusOpen] != 2 || byStatus[StatusResolved] != 2 {
		t.Fatalf("unexpected status counts %v", byStatus)
	}
	if _, err := analytics.CountIncidentsBy(context.Background(), "title; DROP TABLE users"); err == nil {
		t.Fatalf("expected error for unknown group field")
	}
	stats, err := analytics.ResolutionStats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 2 || stats.AverageMinutes != 60 || stats.MinMinutes != 30 || stats.MaxMinutes != 90 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	points, err := analytics.ResolvedSince(context.Background(), now.Add(-time.Hour))
	if err != nil || len(points) != 2 {
		t.Fatalf("expected 2 resolved points, got %d %v", len(points), err)
	}
	created, err := analytics.CreatedSince(context.Background(), now.Add(-90*time.Minute))
	if err != nil || len(created) != 2 {
		t.Fatalf("expected 2 created points, got %d %v", len(created), err)
	}
	top, err := analytics.TopReporters(context.Background(), 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].Count != 2 || top[0].Username == "" {
		t.Fatalf("unexpected top reporters %+v", top)
	}
	uc, err := analytics.UserCounts(context.Background(), now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("user counts: %v", err)
	}
	if uc.Total != 2 || uc.Active != 1 || uc.ByRole["admin"] != 1 {
		t.Fatalf("unexpected user counts %+v", uc)
	}
}
