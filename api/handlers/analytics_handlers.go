package handlers

import (
	"net/http"

	"incidentdesk/core/analytics"
)

type AnalyticsHandler struct {
	svc *analytics.Service
	rs  *Responder
}

func NewAnalyticsHandler(svc *analytics.Service, rs *Responder) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, rs: rs}
}

func (h *AnalyticsHandler) respond(w http.ResponseWriter, r *http.Request, data any, err error) {
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "", data)
}

func (h *AnalyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Dashboard(r.Context(), principal(r))
	h.respond(w, r, d, err)
}

func (h *AnalyticsHandler) Trends(w http.ResponseWriter, r *http.Request) {
	points, err := h.svc.Trends(r.Context(), principal(r), queryInt(r, "days"))
	h.respond(w, r, points, err)
}

func (h *AnalyticsHandler) CategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.svc.CategoryBreakdown(r.Context(), principal(r))
	h.respond(w, r, buckets, err)
}

func (h *AnalyticsHandler) StatusBreakdown(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.svc.StatusBreakdown(r.Context(), principal(r))
	h.respond(w, r, buckets, err)
}

func (h *AnalyticsHandler) ResolutionTime(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.ResolutionTime(r.Context(), principal(r))
	h.respond(w, r, summary, err)
}

func (h *AnalyticsHandler) UserActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := h.svc.UserActivity(r.Context(), principal(r))
	h.respond(w, r, activity, err)
}
