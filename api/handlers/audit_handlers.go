package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"incidentdesk/core/audit"
	"incidentdesk/core/export"
	"incidentdesk/core/store"
	"incidentdesk/core/validation"
)

type AuditHandler struct {
	query  *audit.Query
	export *export.Service
	rs     *Responder
}

func NewAuditHandler(query *audit.Query, exports *export.Service, rs *Responder) *AuditHandler {
	return &AuditHandler{query: query, export: exports, rs: rs}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.list(w, r, filter)
}

func (h *AuditHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, store.AuditFilter{PerformedBy: urlParam(r, "userId")})
}

func (h *AuditHandler) ByIncident(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, store.AuditFilter{TargetType: audit.TargetIncident, TargetID: urlParam(r, "incidentId")})
}

func (h *AuditHandler) list(w http.ResponseWriter, r *http.Request, filter store.AuditFilter) {
	items, page, err := h.query.List(r.Context(), filter, queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.List(w, items, page)
}

func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.query.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "", rec)
}

type auditExportRequest struct {
	Format  string `json:"format"`
	Filters struct {
		Action      string `json:"action"`
		PerformedBy string `json:"performedBy"`
		TargetType  string `json:"targetType"`
		IPAddress   string `json:"ipAddress"`
		StartDate   string `json:"startDate"`
		EndDate     string `json:"endDate"`
	} `json:"filters"`
}

func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	var in auditExportRequest
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	filter := store.AuditFilter{
		Action:      strings.TrimSpace(in.Filters.Action),
		PerformedBy: strings.TrimSpace(in.Filters.PerformedBy),
		TargetType:  strings.TrimSpace(in.Filters.TargetType),
		IPAddress:   strings.TrimSpace(in.Filters.IPAddress),
	}
	var v validation.Collector
	filter.StartDate = dateParam(&v, "startDate", in.Filters.StartDate)
	filter.EndDate = dateParam(&v, "endDate", in.Filters.EndDate)
	if err := v.Err(); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	doc, err := h.export.AuditLogs(r.Context(), principal(r), in.Format, filter)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	writeDocument(w, doc)
}

func parseAuditFilter(r *http.Request) (store.AuditFilter, error) {
	q := r.URL.Query()
	filter := store.AuditFilter{
		Action:      strings.TrimSpace(q.Get("action")),
		PerformedBy: strings.TrimSpace(q.Get("performedBy")),
		TargetType:  strings.TrimSpace(q.Get("targetType")),
		IPAddress:   strings.TrimSpace(q.Get("ipAddress")),
	}
	var v validation.Collector
	filter.StartDate = dateParam(&v, "startDate", q.Get("startDate"))
	filter.EndDate = dateParam(&v, "endDate", q.Get("endDate"))
	return filter, v.Err()
}

func dateParam(v *validation.Collector, field, raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parsed, err := parseDateTime(raw)
	if err != nil {
		v.Add("%s must be a valid date", field)
		return nil
	}
	t := parsed.UTC()
	return &t
}

func parseDateTime(raw string) (time.Time, error) {
	val := strings.TrimSpace(raw)
	if val == "" {
		return time.Time{}, nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, val); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, strconv.ErrSyntax
}

func writeDocument(w http.ResponseWriter, doc *export.Document) {
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+doc.Filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}
