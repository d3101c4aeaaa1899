package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"incidentdesk/core/incidents"
)

type IncidentsHandler struct {
	svc *incidents.Service
	rs  *Responder
}

func NewIncidentsHandler(svc *incidents.Service, rs *Responder) *IncidentsHandler {
	return &IncidentsHandler{svc: svc, rs: rs}
}

func parseIncidentQuery(r *http.Request) incidents.ListQuery {
	q := r.URL.Query()
	return incidents.ListQuery{
		Status:   strings.TrimSpace(q.Get("status")),
		Category: strings.TrimSpace(q.Get("category")),
		Priority: strings.TrimSpace(q.Get("priority")),
		Search:   strings.TrimSpace(q.Get("search")),
		SortBy:   strings.TrimSpace(q.Get("sortBy")),
		Page:     queryInt(r, "page"),
		Limit:    queryInt(r, "limit"),
	}
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in incidents.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	inc, err := h.svc.Create(r.Context(), principal(r), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusCreated, "Incident created successfully", inc)
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, page, err := h.svc.List(r.Context(), principal(r), parseIncidentQuery(r))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.List(w, items, page)
}

func (h *IncidentsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	items, page, err := h.svc.Mine(r.Context(), principal(r), parseIncidentQuery(r))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.List(w, items, page)
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	inc, err := h.svc.Get(r.Context(), principal(r), urlParam(r, "id"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "", inc)
}

func (h *IncidentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in incidents.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	inc, err := h.svc.Update(r.Context(), principal(r), urlParam(r, "id"), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "Incident updated successfully", inc)
}

func (h *IncidentsHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status          string `json:"status"`
		ResolutionNotes string `json:"resolutionNotes"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	inc, err := h.svc.ChangeStatus(r.Context(), principal(r), urlParam(r, "id"), in.Status, in.ResolutionNotes)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "Incident status updated successfully", inc)
}

func (h *IncidentsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AssignedTo string `json:"assignedTo"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	inc, err := h.svc.Assign(r.Context(), principal(r), urlParam(r, "id"), in.AssignedTo)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "Incident assigned successfully", inc)
}

func (h *IncidentsHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var in incidents.BulkInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	res, err := h.svc.BulkUpdate(r.Context(), principal(r), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, fmt.Sprintf("Successfully updated %d incidents", res.ModifiedCount), res)
}

func (h *IncidentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), principal(r), urlParam(r, "id")); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "Incident deleted successfully", nil)
}
