package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type ResolutionStats struct {
	AverageMinutes float64
	MinMinutes     int
	MaxMinutes     int
	Count          int
}

type ResolvedPoint struct {
	ResolvedAt time.Time
	Minutes    int
}

type CreatedPoint struct {
	CreatedAt time.Time
	Status    string
}

type ReporterCount struct {
	UserID   string `json:"_id"`
	Count    int    `json:"count"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type UserCounts struct {
	Total  int
	Active int
	ByRole map[string]int
}

type AnalyticsStore interface {
	CountIncidents(ctx context.Context) (int, error)
	CountIncidentsBy(ctx context.Context, field string) (map[string]int, error)
	ResolutionStats(ctx context.Context) (ResolutionStats, error)
	ResolvedSince(ctx context.Context, since time.Time) ([]ResolvedPoint, error)
	CreatedSince(ctx context.Context, since time.Time) ([]CreatedPoint, error)
	TopReporters(ctx context.Context, limit int) ([]ReporterCount, error)
	UserCounts(ctx context.Context, activeSince time.Time) (UserCounts, error)
}

type analyticsStore struct {
	db *DB
}

func NewAnalyticsStore(db *DB) AnalyticsStore {
	return &analyticsStore{db: db}
}

var groupableIncidentFields = map[string]bool{"status": true, "category": true, "priority": true}

func (s *analyticsStore) CountIncidents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&n)
	return n, err
}

func (s *analyticsStore) CountIncidentsBy(ctx context.Context, field string) (map[string]int, error) {
	if !groupableIncidentFields[field] {
		return nil, fmt.Errorf("cannot group incidents by %q", field)
	}
	return s.groupCount(ctx, `SELECT `+field+`, COUNT(*) FROM incidents GROUP BY `+field)
}

func (s *analyticsStore) ResolutionStats(ctx context.Context) (ResolutionStats, error) {
	var avg sql.NullFloat64
	var minV, maxV sql.NullInt64
	var stats ResolutionStats
	err := s.db.QueryRowContext(ctx, `SELECT CAST(AVG(resolution_time) AS DOUBLE PRECISION), MIN(resolution_time), MAX(resolution_time), COUNT(resolution_time) FROM incidents WHERE resolution_time IS NOT NULL`).
		Scan(&avg, &minV, &maxV, &stats.Count)
	if err != nil {
		return stats, err
	}
	stats.AverageMinutes = avg.Float64
	stats.MinMinutes = int(minV.Int64)
	stats.MaxMinutes = int(maxV.Int64)
	return stats, nil
}

func (s *analyticsStore) ResolvedSince(ctx context.Context, since time.Time) ([]ResolvedPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT resolved_at, resolution_time FROM incidents WHERE resolved_at IS NOT NULL AND resolution_time IS NOT NULL AND resolved_at>=? ORDER BY resolved_at ASC`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ResolvedPoint
	for rows.Next() {
		var p ResolvedPoint
		if err := rows.Scan(&p.ResolvedAt, &p.Minutes); err != nil {
			return nil, err
		}
		p.ResolvedAt = p.ResolvedAt.UTC()
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *analyticsStore) CreatedSince(ctx context.Context, since time.Time) ([]CreatedPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT created_at, status FROM incidents WHERE created_at>=? ORDER BY created_at ASC`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CreatedPoint
	for rows.Next() {
		var p CreatedPoint
		if err := rows.Scan(&p.CreatedAt, &p.Status); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *analyticsStore) TopReporters(ctx context.Context, limit int) ([]ReporterCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT i.reported_by, COUNT(*) AS cnt, COALESCE(u.username, ''), COALESCE(u.email, '')
		FROM incidents i LEFT JOIN users u ON u.id = i.reported_by
		GROUP BY i.reported_by, u.username, u.email
		ORDER BY cnt DESC, i.reported_by ASC`+limitOffset(limit, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []ReporterCount{}
	for rows.Next() {
		var rc ReporterCount
		if err := rows.Scan(&rc.UserID, &rc.Count, &rc.Username, &rc.Email); err != nil {
			return nil, err
		}
		res = append(res, rc)
	}
	return res, rows.Err()
}

func (s *analyticsStore) UserCounts(ctx context.Context, activeSince time.Time) (UserCounts, error) {
	var uc UserCounts
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&uc.Total); err != nil {
		return uc, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE last_login>=?`, activeSince.UTC()).Scan(&uc.Active); err != nil {
		return uc, err
	}
	byRole, err := s.groupCount(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return uc, err
	}
	uc.ByRole = byRole
	return uc, nil
}

func (s *analyticsStore) groupCount(ctx context.Context, query string, args ...any) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}
