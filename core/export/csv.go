package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"incidentdesk/core/store"
)

var incidentColumns = []string{
	"ID", "Title", "Category", "Status", "Priority", "Severity",
	"Reported By", "Assigned To", "Created At", "Resolved At", "Resolution Time (min)",
}

var auditColumns = []string{
	"ID", "Timestamp", "Action", "Performed By", "Role", "Target Type", "Target ID",
	"Status", "IP Address", "Description",
}

func WriteIncidentsCSV(w io.Writer, items []store.Incident) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(incidentColumns); err != nil {
		return err
	}
	for _, inc := range items {
		row := []string{
			inc.ID,
			inc.Title,
			inc.Category,
			inc.Status,
			inc.Priority,
			strconv.Itoa(inc.Severity),
			reporterName(inc),
			assigneeName(inc),
			inc.CreatedAt.UTC().Format(time.RFC3339),
			formatTime(inc.ResolvedAt),
			"",
		}
		if inc.ResolutionTime != nil {
			row[10] = strconv.Itoa(*inc.ResolutionTime)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteAuditCSV(w io.Writer, logs []store.AuditLog) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(auditColumns); err != nil {
		return err
	}
	for _, l := range logs {
		row := []string{
			l.ID,
			l.Timestamp.UTC().Format(time.RFC3339),
			l.Action,
			performerName(l),
			l.UserRole,
			l.TargetType,
			deref(l.TargetID),
			l.Status,
			l.IPAddress,
			l.Description,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func reporterName(inc store.Incident) string {
	if inc.Reporter != nil {
		return inc.Reporter.Username
	}
	return inc.ReportedBy
}

func assigneeName(inc store.Incident) string {
	if inc.Assignee != nil {
		return inc.Assignee.Username
	}
	return deref(inc.AssignedTo)
}

func performerName(l store.AuditLog) string {
	if l.Performer != nil {
		return l.Performer.Username
	}
	return deref(l.PerformedBy)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
