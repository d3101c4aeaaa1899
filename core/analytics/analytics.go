// Package analytics aggregates incident and user statistics for the
// admin dashboard. Day bucketing happens here so both dialects share it.
package analytics

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"time"

	"incidentdesk/core/auth"
	"incidentdesk/core/rbac"
	"incidentdesk/core/store"
	"incidentdesk/core/utils"
)

var ErrForbidden = errors.New("access denied")

const (
	trendWindow   = 30 * 24 * time.Hour
	activeWindow  = 30 * 24 * time.Hour
	dayLayout     = "2006-01-02"
	topReporterN  = 10
	maxTrendDays  = 365
	defaultTrends = 30
)

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type Bucket struct {
	Key   string `json:"_id"`
	Count int    `json:"count"`
}

type AverageResolution struct {
	Minutes int    `json:"minutes"`
	Hours   string `json:"hours"`
}

type ResolutionPoint struct {
	Date              string  `json:"date"`
	AvgResolutionTime float64 `json:"avgResolutionTime"`
	Count             int     `json:"count"`
}

type Dashboard struct {
	TotalIncidents        int               `json:"totalIncidents"`
	StatusStats           map[string]int    `json:"statusStats"`
	CategoryData          []CategoryCount   `json:"categoryData"`
	AverageResolutionTime AverageResolution `json:"averageResolutionTime"`
	ResolutionTimeTrend   []ResolutionPoint `json:"resolutionTimeTrend"`
	PriorityStats         map[string]int    `json:"priorityStats"`
}

type TrendPoint struct {
	Date          string `json:"_id"`
	Count         int    `json:"count"`
	OpenCount     int    `json:"openCount"`
	ResolvedCount int    `json:"resolvedCount"`
}

type ResolutionSummary struct {
	AverageMinutes int     `json:"averageMinutes"`
	AverageHours   float64 `json:"averageHours"`
	MinMinutes     int     `json:"minMinutes"`
	MaxMinutes     int     `json:"maxMinutes"`
	Count          int     `json:"count"`
}

type UserActivity struct {
	TotalUsers   int                   `json:"totalUsers"`
	ActiveUsers  int                   `json:"activeUsers"`
	UsersByRole  map[string]int        `json:"usersByRole"`
	TopReporters []store.ReporterCount `json:"topReporters"`
}

type Service struct {
	store  store.AnalyticsStore
	policy *rbac.Policy
	now    func() time.Time
}

func NewService(analytics store.AnalyticsStore, policy *rbac.Policy) *Service {
	return &Service{store: analytics, policy: policy, now: utils.NowUTC}
}

func (s *Service) authorize(actor *auth.Principal) error {
	if actor == nil || !s.policy.Allowed(actor.Role, rbac.PermAnalyticsView) {
		return ErrForbidden
	}
	return nil
}

func (s *Service) Dashboard(ctx context.Context, actor *auth.Principal) (*Dashboard, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	total, err := s.store.CountIncidents(ctx)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.store.CountIncidentsBy(ctx, "status")
	if err != nil {
		return nil, err
	}
	byCategory, err := s.store.CountIncidentsBy(ctx, "category")
	if err != nil {
		return nil, err
	}
	byPriority, err := s.store.CountIncidentsBy(ctx, "priority")
	if err != nil {
		return nil, err
	}
	stats, err := s.store.ResolutionStats(ctx)
	if err != nil {
		return nil, err
	}
	resolved, err := s.store.ResolvedSince(ctx, s.now().Add(-trendWindow))
	if err != nil {
		return nil, err
	}
	d := &Dashboard{
		TotalIncidents: total,
		StatusStats:    fill(byStatus, store.StatusOpen, store.StatusInProgress, store.StatusResolved, store.StatusClosed, store.StatusRejected),
		PriorityStats:  fill(byPriority, "low", "medium", "high", "critical"),
		AverageResolutionTime: AverageResolution{
			Minutes: int(math.Round(stats.AverageMinutes)),
			Hours:   strconv.FormatFloat(stats.AverageMinutes/60, 'f', 2, 64),
		},
		CategoryData:        make([]CategoryCount, 0, len(byCategory)),
		ResolutionTimeTrend: resolutionTrend(resolved),
	}
	for _, b := range sortedBuckets(byCategory) {
		d.CategoryData = append(d.CategoryData, CategoryCount{Category: b.Key, Count: b.Count})
	}
	return d, nil
}

// Trends buckets incidents created in the last days by UTC day; days
// without incidents are omitted.
func (s *Service) Trends(ctx context.Context, actor *auth.Principal, days int) ([]TrendPoint, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = defaultTrends
	}
	if days > maxTrendDays {
		days = maxTrendDays
	}
	points, err := s.store.CreatedSince(ctx, s.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	byDay := map[string]*TrendPoint{}
	for _, p := range points {
		key := p.CreatedAt.UTC().Format(dayLayout)
		tp, ok := byDay[key]
		if !ok {
			tp = &TrendPoint{Date: key}
			byDay[key] = tp
		}
		tp.Count++
		switch p.Status {
		case store.StatusOpen:
			tp.OpenCount++
		case store.StatusResolved:
			tp.ResolvedCount++
		}
	}
	out := make([]TrendPoint, 0, len(byDay))
	for _, tp := range byDay {
		out = append(out, *tp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Service) CategoryBreakdown(ctx context.Context, actor *auth.Principal) ([]Bucket, error) {
	return s.breakdown(ctx, actor, "category")
}

func (s *Service) StatusBreakdown(ctx context.Context, actor *auth.Principal) ([]Bucket, error) {
	return s.breakdown(ctx, actor, "status")
}

func (s *Service) breakdown(ctx context.Context, actor *auth.Principal, field string) ([]Bucket, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	counts, err := s.store.CountIncidentsBy(ctx, field)
	if err != nil {
		return nil, err
	}
	return sortedBuckets(counts), nil
}

func (s *Service) ResolutionTime(ctx context.Context, actor *auth.Principal) (*ResolutionSummary, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	stats, err := s.store.ResolutionStats(ctx)
	if err != nil {
		return nil, err
	}
	return &ResolutionSummary{
		AverageMinutes: int(math.Round(stats.AverageMinutes)),
		AverageHours:   round2(stats.AverageMinutes / 60),
		MinMinutes:     stats.MinMinutes,
		MaxMinutes:     stats.MaxMinutes,
		Count:          stats.Count,
	}, nil
}

func (s *Service) UserActivity(ctx context.Context, actor *auth.Principal) (*UserActivity, error) {
	if err := s.authorize(actor); err != nil {
		return nil, err
	}
	counts, err := s.store.UserCounts(ctx, s.now().Add(-activeWindow))
	if err != nil {
		return nil, err
	}
	top, err := s.store.TopReporters(ctx, topReporterN)
	if err != nil {
		return nil, err
	}
	if top == nil {
		top = []store.ReporterCount{}
	}
	return &UserActivity{
		TotalUsers:   counts.Total,
		ActiveUsers:  counts.Active,
		UsersByRole:  fill(counts.ByRole, rbac.AllRoles()...),
		TopReporters: top,
	}, nil
}

func resolutionTrend(points []store.ResolvedPoint) []ResolutionPoint {
	type acc struct {
		minutes int
		count   int
	}
	byDay := map[string]*acc{}
	for _, p := range points {
		key := p.ResolvedAt.UTC().Format(dayLayout)
		a, ok := byDay[key]
		if !ok {
			a = &acc{}
			byDay[key] = a
		}
		a.minutes += p.Minutes
		a.count++
	}
	out := make([]ResolutionPoint, 0, len(byDay))
	for day, a := range byDay {
		out = append(out, ResolutionPoint{
			Date:              day,
			AvgResolutionTime: round2(float64(a.minutes) / float64(a.count) / 60),
			Count:             a.count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// sortedBuckets orders by count desc, then key.
func sortedBuckets(counts map[string]int) []Bucket {
	out := make([]Bucket, 0, len(counts))
	for k, v := range counts {
		out = append(out, Bucket{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func fill(counts map[string]int, keys ...string) map[string]int {
	out := make(map[string]int, len(keys))
	for _, k := range keys {
		out[k] = 0
	}
	for k, v := range counts {
		out[k] = v
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
