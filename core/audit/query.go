package audit

import (
	"context"

	"incidentdesk/core/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Query serves the read side of the audit trail.
type Query struct {
	store store.AuditStore
	users store.UsersStore
}

func NewQuery(audits store.AuditStore, users store.UsersStore) *Query {
	return &Query{store: audits, users: users}
}

func (q *Query) List(ctx context.Context, filter store.AuditFilter, page, limit int) ([]store.AuditLog, store.Pagination, error) {
	page, limit, offset := store.Page(page, limit, defaultPageSize, maxPageSize)
	filter.Limit, filter.Offset = limit, offset
	items, total, err := q.store.List(ctx, filter)
	if err != nil {
		return nil, store.Pagination{}, err
	}
	if err := q.attachPerformers(ctx, items); err != nil {
		return nil, store.Pagination{}, err
	}
	return items, store.NewPagination(page, limit, total), nil
}

// All returns every record matching filter, newest first, for exports.
func (q *Query) All(ctx context.Context, filter store.AuditFilter, max int) ([]store.AuditLog, error) {
	filter.Limit, filter.Offset = max, 0
	items, _, err := q.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return items, q.attachPerformers(ctx, items)
}

func (q *Query) Get(ctx context.Context, id string) (*store.AuditLog, error) {
	rec, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	items := []store.AuditLog{*rec}
	if err := q.attachPerformers(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (q *Query) attachPerformers(ctx context.Context, items []store.AuditLog) error {
	if q.users == nil || len(items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.PerformedBy != nil {
			ids = append(ids, *it.PerformedBy)
		}
	}
	sums, err := q.users.Summaries(ctx, ids)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].PerformedBy == nil {
			continue
		}
		if s, ok := sums[*items[i].PerformedBy]; ok {
			sum := s
			items[i].Performer = &sum
		}
	}
	return nil
}
