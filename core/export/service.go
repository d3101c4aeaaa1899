// Package export renders incidents and audit records as CSV or PDF.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"incidentdesk/core/audit"
	"incidentdesk/core/auth"
	"incidentdesk/core/incidents"
	"incidentdesk/core/rbac"
	"incidentdesk/core/store"
	"incidentdesk/core/utils"
	"incidentdesk/core/validation"
)

var ErrForbidden = errors.New("access denied")

const (
	FormatCSV = "csv"
	FormatPDF = "pdf"

	maxRows = 10000
)

type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

type IncidentFilters struct {
	Status   string     `json:"status"`
	Category string     `json:"category"`
	Priority string     `json:"priority"`
	DateFrom *time.Time `json:"dateFrom"`
	DateTo   *time.Time `json:"dateTo"`
}

type Service struct {
	incidents *incidents.Service
	audits    *audit.Query
	policy    *rbac.Policy
	audit     *audit.Recorder
	now       func() time.Time
}

func NewService(incidentSvc *incidents.Service, audits *audit.Query, policy *rbac.Policy, recorder *audit.Recorder) *Service {
	return &Service{incidents: incidentSvc, audits: audits, policy: policy, audit: recorder, now: utils.NowUTC}
}

func validFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	var v validation.Collector
	if v.Required("format", format) {
		v.OneOf("format", format, []string{FormatCSV, FormatPDF})
	}
	return format, v.Err()
}

func (s *Service) Incidents(ctx context.Context, actor *auth.Principal, format string, f IncidentFilters) (*Document, error) {
	if actor == nil || !s.policy.Allowed(actor.Role, rbac.PermExportRun) {
		return nil, ErrForbidden
	}
	format, err := validFormat(format)
	if err != nil {
		return nil, err
	}
	filter := store.IncidentFilter{Status: f.Status, Category: f.Category, Priority: f.Priority, DateFrom: f.DateFrom, DateTo: f.DateTo}
	items, err := s.incidents.All(ctx, actor, filter, maxRows)
	if err != nil {
		return nil, err
	}
	now := s.now()
	doc, err := render(format, "incidents", now, func(buf *bytes.Buffer) error {
		if format == FormatCSV {
			return WriteIncidentsCSV(buf, items)
		}
		return WriteIncidentsPDF(buf, items, now)
	})
	if err != nil {
		return nil, err
	}
	s.recordExport(ctx, actor, "incidents", format, len(items))
	return doc, nil
}

func (s *Service) AuditLogs(ctx context.Context, actor *auth.Principal, format string, filter store.AuditFilter) (*Document, error) {
	if actor == nil || !s.policy.Allowed(actor.Role, rbac.PermAuditView) {
		return nil, ErrForbidden
	}
	format, err := validFormat(format)
	if err != nil {
		return nil, err
	}
	logs, err := s.audits.All(ctx, filter, maxRows)
	if err != nil {
		return nil, err
	}
	now := s.now()
	doc, err := render(format, "audit_logs", now, func(buf *bytes.Buffer) error {
		if format == FormatCSV {
			return WriteAuditCSV(buf, logs)
		}
		return WriteAuditPDF(buf, logs, now)
	})
	if err != nil {
		return nil, err
	}
	s.recordExport(ctx, actor, "audit_logs", format, len(logs))
	return doc, nil
}

func render(format, kind string, now time.Time, write func(*bytes.Buffer) error) (*Document, error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return nil, fmt.Errorf("render %s %s: %w", kind, format, err)
	}
	ct := "text/csv; charset=utf-8"
	if format == FormatPDF {
		ct = "application/pdf"
	}
	return &Document{
		Filename:    kind + "_" + now.Format("20060102_150405") + "." + format,
		ContentType: ct,
		Body:        buf.Bytes(),
	}, nil
}

func (s *Service) recordExport(ctx context.Context, actor *auth.Principal, kind, format string, count int) {
	s.audit.Record(ctx, audit.Entry{
		Action: audit.ActionDataExport, PerformedBy: actor.UserID, UserRole: actor.Role,
		TargetType:  audit.TargetSystem,
		Metadata:    map[string]any{"type": kind, "format": format, "count": count},
		Description: fmt.Sprintf("exported %d %s as %s", count, kind, format),
	})
}
