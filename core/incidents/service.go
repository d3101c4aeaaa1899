package incidents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"incidentdesk/core/audit"
	"incidentdesk/core/auth"
	"incidentdesk/core/notify"
	"incidentdesk/core/rbac"
	"incidentdesk/core/store"
	"incidentdesk/core/utils"
	"incidentdesk/core/validation"

	"github.com/gofrs/uuid/v5"
)

var (
	ErrForbidden         = errors.New("access denied")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAssigneeNotFound  = errors.New("assignee not found")
	ErrInvalidAssignee   = errors.New("incidents can only be assigned to admins")
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	maxBulkIDs      = 100
	maxEvidence     = 5
	maxTags         = 10
)

type CreateInput struct {
	Title         string               `json:"title"`
	Description   string               `json:"description"`
	Category      string               `json:"category"`
	Priority      string               `json:"priority"`
	Severity      *int                 `json:"severity"`
	Tags          []string             `json:"tags"`
	EvidenceFiles []store.EvidenceFile `json:"evidenceFiles"`
	IncidentDate  *time.Time           `json:"incidentDate"`
}

type UpdateInput struct {
	Title           *string              `json:"title"`
	Description     *string              `json:"description"`
	Category        *string              `json:"category"`
	Priority        *string              `json:"priority"`
	Severity        *int                 `json:"severity"`
	Status          *string              `json:"status"`
	ResolutionNotes *string              `json:"resolutionNotes"`
	Tags            []string             `json:"tags"`
	EvidenceFiles   []store.EvidenceFile `json:"evidenceFiles"`
}

type ListQuery struct {
	Status   string
	Category string
	Priority string
	Search   string
	SortBy   string
	Page     int
	Limit    int
}

type BulkInput struct {
	IDs             []string `json:"incidentIds"`
	Status          string   `json:"status"`
	AssignedTo      string   `json:"assignedTo"`
	ResolutionNotes string   `json:"resolutionNotes"`
}

type BulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type BulkResult struct {
	ModifiedCount int           `json:"modifiedCount"`
	MatchedCount  int           `json:"matchedCount"`
	Failed        []BulkFailure `json:"failed,omitempty"`
}

type Service struct {
	incidents store.IncidentsStore
	users     store.UsersStore
	policy    *rbac.Policy
	audit     *audit.Recorder
	notify    notify.Publisher
	logger    *utils.Logger
	now       func() time.Time
}

func NewService(incidents store.IncidentsStore, users store.UsersStore, policy *rbac.Policy, recorder *audit.Recorder, publisher notify.Publisher, logger *utils.Logger) *Service {
	return &Service{incidents: incidents, users: users, policy: policy, audit: recorder, notify: publisher, logger: logger, now: utils.NowUTC}
}

func (s *Service) can(actor *auth.Principal, perm rbac.Permission) bool {
	return actor != nil && s.policy.Allowed(actor.Role, perm)
}

func (s *Service) Create(ctx context.Context, actor *auth.Principal, in CreateInput) (*store.Incident, error) {
	if !s.can(actor, rbac.PermIncidentsCreate) {
		return nil, ErrForbidden
	}
	in.Title, in.Description = strings.TrimSpace(in.Title), strings.TrimSpace(in.Description)
	if in.Priority == "" {
		in.Priority = "medium"
	}
	severity := 5
	if in.Severity != nil {
		severity = *in.Severity
	}
	var v validation.Collector
	if v.Required("title", in.Title) {
		v.Length("title", in.Title, 5, 200)
	}
	if v.Required("description", in.Description) {
		v.Length("description", in.Description, 10, 2000)
	}
	if v.Required("category", in.Category) {
		v.OneOf("category", in.Category, Categories)
	}
	v.OneOf("priority", in.Priority, Priorities)
	v.IntRange("severity", severity, 1, 10)
	tags := validateTags(&v, in.Tags)
	validateEvidence(&v, in.EvidenceFiles)
	if err := v.Err(); err != nil {
		return nil, err
	}
	req := audit.RequestFrom(ctx)
	now := s.now()
	inc := &store.Incident{
		ID:            uuid.Must(uuid.NewV4()).String(),
		Title:         in.Title,
		Description:   in.Description,
		Category:      in.Category,
		Priority:      in.Priority,
		Severity:      severity,
		Status:        store.StatusOpen,
		ReportedBy:    actor.UserID,
		EvidenceFiles: in.EvidenceFiles,
		IncidentDate:  in.IncidentDate,
		IPAddress:     req.IP,
		UserAgent:     req.UserAgent,
		Tags:          tags,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if inc.IncidentDate == nil {
		inc.IncidentDate = &now
	}
	if err := s.incidents.Create(ctx, inc); err != nil {
		return nil, err
	}
	s.activity(ctx, inc.ID, "created", actor.UserID, "Incident reported", now)
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionIncidentCreated, PerformedBy: actor.UserID, UserRole: actor.Role,
		TargetType: audit.TargetIncident, TargetID: inc.ID, After: snapshot(inc),
		Description: "incident created: " + inc.Title,
	})
	payload := map[string]any{
		"incidentId": inc.ID,
		"title":      inc.Title,
		"category":   inc.Category,
		"priority":   inc.Priority,
		"reportedBy": actor.Username,
	}
	s.notify.Publish(ctx, notify.RoleChannel(rbac.RoleAdmin), notify.EventIncidentCreated, payload)
	s.notify.Publish(ctx, notify.RoleChannel(rbac.RoleSuperAdmin), notify.EventIncidentCreated, payload)
	return s.Get(ctx, actor, inc.ID)
}

// List restricts callers without view_all to their own reports.
func (s *Service) List(ctx context.Context, actor *auth.Principal, q ListQuery) ([]store.Incident, store.Pagination, error) {
	if !s.can(actor, rbac.PermIncidentsView) {
		return nil, store.Pagination{}, ErrForbidden
	}
	filter := store.IncidentFilter{Status: q.Status, Category: q.Category, Priority: q.Priority, Search: q.Search, SortBy: q.SortBy}
	if !s.can(actor, rbac.PermIncidentsViewAll) {
		filter.ReportedBy = actor.UserID
	}
	return s.list(ctx, filter, q.Page, q.Limit)
}

func (s *Service) Mine(ctx context.Context, actor *auth.Principal, q ListQuery) ([]store.Incident, store.Pagination, error) {
	if !s.can(actor, rbac.PermIncidentsView) {
		return nil, store.Pagination{}, ErrForbidden
	}
	filter := store.IncidentFilter{ReportedBy: actor.UserID, Status: q.Status, Category: q.Category, Priority: q.Priority, Search: q.Search, SortBy: q.SortBy}
	return s.list(ctx, filter, q.Page, q.Limit)
}

func (s *Service) list(ctx context.Context, filter store.IncidentFilter, page, limit int) ([]store.Incident, store.Pagination, error) {
	var v validation.Collector
	if filter.Status != "" {
		v.OneOf("status", filter.Status, Statuses)
	}
	if filter.Category != "" {
		v.OneOf("category", filter.Category, Categories)
	}
	if filter.Priority != "" {
		v.OneOf("priority", filter.Priority, Priorities)
	}
	if err := v.Err(); err != nil {
		return nil, store.Pagination{}, err
	}
	page, limit, offset := store.Page(page, limit, defaultPageSize, maxPageSize)
	filter.Limit, filter.Offset = limit, offset
	items, total, err := s.incidents.List(ctx, filter)
	if err != nil {
		return nil, store.Pagination{}, err
	}
	if err := s.attachUsers(ctx, items); err != nil {
		return nil, store.Pagination{}, err
	}
	return items, store.NewPagination(page, limit, total), nil
}

func (s *Service) Get(ctx context.Context, actor *auth.Principal, id string) (*store.Incident, error) {
	inc, err := s.incidents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canSee(actor, inc) {
		return nil, ErrForbidden
	}
	items := []store.Incident{*inc}
	if err := s.attachUsers(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (s *Service) canSee(actor *auth.Principal, inc *store.Incident) bool {
	if actor == nil {
		return false
	}
	return inc.ReportedBy == actor.UserID || s.can(actor, rbac.PermIncidentsViewAll)
}

func (s *Service) Update(ctx context.Context, actor *auth.Principal, id string, in UpdateInput) (*store.Incident, error) {
	if !s.can(actor, rbac.PermIncidentsManage) {
		return nil, ErrForbidden
	}
	inc, err := s.incidents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := snapshot(inc)
	wasResolved := inc.ResolvedAt != nil
	var v validation.Collector
	if in.Title != nil {
		inc.Title = strings.TrimSpace(*in.Title)
		v.Length("title", inc.Title, 5, 200)
	}
	if in.Description != nil {
		inc.Description = strings.TrimSpace(*in.Description)
		v.Length("description", inc.Description, 10, 2000)
	}
	if in.Category != nil {
		inc.Category = *in.Category
		v.OneOf("category", inc.Category, Categories)
	}
	if in.Priority != nil {
		inc.Priority = *in.Priority
		v.OneOf("priority", inc.Priority, Priorities)
	}
	if in.Severity != nil {
		inc.Severity = *in.Severity
		v.IntRange("severity", inc.Severity, 1, 10)
	}
	if in.ResolutionNotes != nil {
		inc.ResolutionNotes = strings.TrimSpace(*in.ResolutionNotes)
		v.Length("resolutionNotes", inc.ResolutionNotes, 0, 1000)
	}
	if in.Tags != nil {
		inc.Tags = validateTags(&v, in.Tags)
	}
	if in.EvidenceFiles != nil {
		validateEvidence(&v, in.EvidenceFiles)
		inc.EvidenceFiles = in.EvidenceFiles
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	statusChanged := false
	if in.Status != nil {
		if statusChanged, err = applyStatus(inc, *in.Status, actor.UserID, now); err != nil {
			return nil, err
		}
	}
	inc.UpdatedAt = now
	if err := s.incidents.Update(ctx, inc); err != nil {
		return nil, err
	}
	s.activity(ctx, inc.ID, "updated", actor.UserID, "Incident details updated", now)
	if statusChanged {
		s.activity(ctx, inc.ID, "status_changed", actor.UserID, fmt.Sprintf("Status changed from %v to %s", before["status"], inc.Status), now)
	}
	var meta map[string]any
	if !wasResolved && inc.ResolvedAt != nil {
		meta = resolutionMeta(inc)
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionIncidentUpdated, PerformedBy: actor.UserID, UserRole: actor.Role,
		TargetType: audit.TargetIncident, TargetID: inc.ID, Before: before, After: snapshot(inc),
		Metadata: meta, Description: "incident updated: " + inc.Title,
	})
	s.notify.Publish(ctx, notify.UserChannel(inc.ReportedBy), notify.EventIncidentUpdated, map[string]any{
		"incidentId": inc.ID, "title": inc.Title, "status": inc.Status, "message": "Your incident has been updated",
	})
	return s.Get(ctx, actor, inc.ID)
}

func (s *Service) ChangeStatus(ctx context.Context, actor *auth.Principal, id, status, notes string) (*store.Incident, error) {
	if !s.can(actor, rbac.PermIncidentsManage) {
		return nil, ErrForbidden
	}
	notes = strings.TrimSpace(notes)
	var v validation.Collector
	if v.Required("status", status) {
		v.OneOf("status", status, Statuses)
	}
	v.Length("resolutionNotes", notes, 0, 1000)
	if err := v.Err(); err != nil {
		return nil, err
	}
	inc, err := s.incidents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.changeStatus(ctx, actor, inc, status, notes, false); err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, inc.ID)
}

// changeStatus persists one transition with its activity and notification.
// Unless quiet is set it also writes the single audit record for the
// transition; bulk callers set quiet and audit the whole batch once. A
// same-status request changes nothing.
func (s *Service) changeStatus(ctx context.Context, actor *auth.Principal, inc *store.Incident, status, notes string, quiet bool) (bool, error) {
	from := inc.Status
	now := s.now()
	changed, err := applyStatus(inc, status, actor.UserID, now)
	if err != nil || !changed {
		return false, err
	}
	if notes != "" {
		inc.ResolutionNotes = notes
	}
	inc.UpdatedAt = now
	if err := s.incidents.Update(ctx, inc); err != nil {
		return false, err
	}
	s.activity(ctx, inc.ID, "status_changed", actor.UserID, fmt.Sprintf("Status changed from %s to %s", from, status), now)
	if !quiet {
		var meta map[string]any
		if status == store.StatusResolved && inc.ResolvedAt != nil && inc.ResolvedAt.Equal(now) {
			meta = resolutionMeta(inc)
		}
		s.audit.Record(ctx, audit.Entry{
			Action: audit.ActionIncidentStatusChanged, PerformedBy: actor.UserID, UserRole: actor.Role,
			TargetType: audit.TargetIncident, TargetID: inc.ID,
			Before: map[string]any{"status": from}, After: map[string]any{"status": status},
			Metadata: meta, Description: fmt.Sprintf("status changed from %s to %s", from, status),
		})
	}
	s.notify.Publish(ctx, notify.UserChannel(inc.ReportedBy), notify.EventIncidentStatusChanged, map[string]any{
		"incidentId": inc.ID, "title": inc.Title, "status": status,
		"message": fmt.Sprintf("Incident status changed to %s", status),
	})
	return true, nil
}

// resolutionMeta describes the resolve stamp for the audit record of the
// action that produced it.
func resolutionMeta(inc *store.Incident) map[string]any {
	meta := map[string]any{"resolved": true, "resolvedAt": inc.ResolvedAt.UTC().Format(time.RFC3339)}
	if inc.ResolutionTime != nil {
		meta["resolutionTime"] = *inc.ResolutionTime
	}
	return meta
}

func (s *Service) Assign(ctx context.Context, actor *auth.Principal, id, assigneeID string) (*store.Incident, error) {
	if !s.can(actor, rbac.PermIncidentsManage) {
		return nil, ErrForbidden
	}
	var v validation.Collector
	v.Required("assignedTo", assigneeID)
	if err := v.Err(); err != nil {
		return nil, err
	}
	assignee, err := s.assignee(ctx, assigneeID)
	if err != nil {
		return nil, err
	}
	inc, err := s.incidents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.assign(ctx, actor, inc, assignee, false); err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, inc.ID)
}

func (s *Service) assignee(ctx context.Context, id string) (*store.User, error) {
	u, err := s.users.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAssigneeNotFound
	}
	if err != nil {
		return nil, err
	}
	if !rbac.IsElevated(u.Role) {
		return nil, ErrInvalidAssignee
	}
	return u, nil
}

func (s *Service) assign(ctx context.Context, actor *auth.Principal, inc *store.Incident, assignee *store.User, quiet bool) (bool, error) {
	if inc.AssignedTo != nil && *inc.AssignedTo == assignee.ID {
		return false, nil
	}
	var prev any
	if inc.AssignedTo != nil {
		prev = *inc.AssignedTo
	}
	now := s.now()
	id := assignee.ID
	inc.AssignedTo = &id
	inc.UpdatedAt = now
	if err := s.incidents.Update(ctx, inc); err != nil {
		return false, err
	}
	s.activity(ctx, inc.ID, "assigned", actor.UserID, "Assigned to "+assignee.Username, now)
	if !quiet {
		s.audit.Record(ctx, audit.Entry{
			Action: audit.ActionIncidentAssigned, PerformedBy: actor.UserID, UserRole: actor.Role,
			TargetType: audit.TargetIncident, TargetID: inc.ID,
			Before: map[string]any{"assignedTo": prev}, After: map[string]any{"assignedTo": assignee.ID},
			Description: "incident assigned to " + assignee.Username,
		})
	}
	s.notify.Publish(ctx, notify.UserChannel(assignee.ID), notify.EventIncidentAssigned, map[string]any{
		"incidentId": inc.ID, "title": inc.Title, "priority": inc.Priority,
		"message": "You have been assigned a new incident",
	})
	s.notify.Publish(ctx, notify.UserChannel(inc.ReportedBy), notify.EventIncidentUpdated, map[string]any{
		"incidentId": inc.ID, "title": inc.Title, "status": inc.Status,
		"message": "Your incident has been assigned to an analyst",
	})
	return true, nil
}

// BulkUpdate applies status and/or assignment one incident at a time. It is
// not atomic: rows updated before a failure stay updated. The batch produces
// one audit record carrying the per-incident outcomes.
func (s *Service) BulkUpdate(ctx context.Context, actor *auth.Principal, in BulkInput) (*BulkResult, error) {
	if !s.can(actor, rbac.PermIncidentsManage) {
		return nil, ErrForbidden
	}
	ids := dedupe(in.IDs)
	in.ResolutionNotes = strings.TrimSpace(in.ResolutionNotes)
	var v validation.Collector
	if len(ids) == 0 || len(ids) > maxBulkIDs {
		v.Add("%q must contain between 1 and %d items", "incidentIds", maxBulkIDs)
	}
	if in.Status == "" && in.AssignedTo == "" {
		v.Add("either %q or %q is required", "status", "assignedTo")
	}
	if in.Status != "" {
		v.OneOf("status", in.Status, Statuses)
	}
	v.Length("resolutionNotes", in.ResolutionNotes, 0, 1000)
	if err := v.Err(); err != nil {
		return nil, err
	}
	var assignee *store.User
	if in.AssignedTo != "" {
		var err error
		if assignee, err = s.assignee(ctx, in.AssignedTo); err != nil {
			return nil, err
		}
	}
	res := &BulkResult{}
	modifiedIDs := []string{}
	resolved := map[string]int{}
	for _, id := range ids {
		inc, err := s.incidents.Get(ctx, id)
		if err != nil {
			res.Failed = append(res.Failed, BulkFailure{ID: id, Error: bulkError(err)})
			continue
		}
		res.MatchedCount++
		modified := false
		if in.Status != "" {
			wasResolved := inc.ResolvedAt != nil
			changed, err := s.changeStatus(ctx, actor, inc, in.Status, in.ResolutionNotes, true)
			if err != nil {
				res.Failed = append(res.Failed, BulkFailure{ID: id, Error: bulkError(err)})
				continue
			}
			if !wasResolved && inc.ResolutionTime != nil {
				resolved[id] = *inc.ResolutionTime
			}
			modified = modified || changed
		}
		if assignee != nil {
			changed, err := s.assign(ctx, actor, inc, assignee, true)
			if err != nil {
				res.Failed = append(res.Failed, BulkFailure{ID: id, Error: bulkError(err)})
				continue
			}
			modified = modified || changed
		}
		if modified {
			res.ModifiedCount++
			modifiedIDs = append(modifiedIDs, id)
		}
	}
	action := audit.ActionBulkStatusUpdate
	if in.Status == "" {
		action = audit.ActionBulkAssign
	}
	status := audit.StatusSuccess
	if len(res.Failed) > 0 {
		status = audit.StatusPartial
		if res.ModifiedCount == 0 {
			status = audit.StatusFailed
		}
	}
	meta := map[string]any{"incidentIds": ids, "modifiedCount": res.ModifiedCount, "modified": modifiedIDs}
	if in.Status != "" {
		meta["status"] = in.Status
	}
	if in.AssignedTo != "" {
		meta["assignedTo"] = in.AssignedTo
	}
	if len(resolved) > 0 {
		meta["resolutionTimes"] = resolved
	}
	if len(res.Failed) > 0 {
		meta["failed"] = res.Failed
	}
	s.audit.Record(ctx, audit.Entry{
		Action: action, PerformedBy: actor.UserID, UserRole: actor.Role, TargetType: audit.TargetIncident,
		Status: status, Metadata: meta,
		Description: fmt.Sprintf("bulk update of %d incidents, %d modified", len(ids), res.ModifiedCount),
	})
	return res, nil
}

func (s *Service) Delete(ctx context.Context, actor *auth.Principal, id string) error {
	if !s.can(actor, rbac.PermIncidentsDelete) {
		return ErrForbidden
	}
	inc, err := s.incidents.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.incidents.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionIncidentDeleted, PerformedBy: actor.UserID, UserRole: actor.Role,
		TargetType: audit.TargetIncident, TargetID: id, Before: snapshot(inc),
		Description: "incident deleted: " + inc.Title,
	})
	return nil
}

// All returns every incident matching filter for exports.
func (s *Service) All(ctx context.Context, actor *auth.Principal, filter store.IncidentFilter, max int) ([]store.Incident, error) {
	if !s.can(actor, rbac.PermIncidentsViewAll) {
		filter.ReportedBy = actor.UserID
	}
	filter.Limit, filter.Offset = max, 0
	items, _, err := s.incidents.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return items, s.attachUsers(ctx, items)
}

func (s *Service) activity(ctx context.Context, incidentID, action, actorID, details string, at time.Time) {
	err := s.incidents.AddActivity(ctx, store.ActivityEntry{IncidentID: incidentID, Action: action, PerformedBy: actorID, Details: details, Timestamp: at})
	if err != nil {
		s.logger.Errorf("incident activity %s %s: %v", incidentID, action, err)
	}
}

func (s *Service) attachUsers(ctx context.Context, items []store.Incident) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(items)*2)
	for _, it := range items {
		ids = append(ids, it.ReportedBy)
		if it.AssignedTo != nil {
			ids = append(ids, *it.AssignedTo)
		}
	}
	sums, err := s.users.Summaries(ctx, ids)
	if err != nil {
		return err
	}
	for i := range items {
		if u, ok := sums[items[i].ReportedBy]; ok {
			rep := u
			items[i].Reporter = &rep
		}
		if items[i].AssignedTo != nil {
			if u, ok := sums[*items[i].AssignedTo]; ok {
				as := u
				items[i].Assignee = &as
			}
		}
	}
	return nil
}

func snapshot(inc *store.Incident) map[string]any {
	m := map[string]any{
		"title":    inc.Title,
		"category": inc.Category,
		"priority": inc.Priority,
		"severity": inc.Severity,
		"status":   inc.Status,
	}
	if inc.AssignedTo != nil {
		m["assignedTo"] = *inc.AssignedTo
	}
	if inc.ResolutionTime != nil {
		m["resolutionTime"] = *inc.ResolutionTime
	}
	return m
}

func validateTags(v *validation.Collector, tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		v.Length("tags", t, 0, 50)
		out = append(out, t)
	}
	if len(out) > maxTags {
		v.Add("%q must contain less than or equal to %d items", "tags", maxTags)
	}
	return out
}

func validateEvidence(v *validation.Collector, files []store.EvidenceFile) {
	if len(files) > maxEvidence {
		v.Add("%q must contain less than or equal to %d items", "evidenceFiles", maxEvidence)
	}
	for _, f := range files {
		if strings.TrimSpace(f.Filename) == "" {
			v.Add("%q entries need a filename", "evidenceFiles")
			return
		}
	}
}

func statusError(status string) error {
	return validation.Errors{fmt.Sprintf("%q must be one of [%s], got %q", "status", strings.Join(Statuses, ", "), status)}
}

func bulkError(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "incident not found"
	case errors.Is(err, ErrInvalidTransition):
		return err.Error()
	default:
		return "update failed"
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
