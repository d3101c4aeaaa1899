package handlers

import (
	"net/http"

	"incidentdesk/core/export"
)

type ExportHandler struct {
	svc *export.Service
	rs  *Responder
}

func NewExportHandler(svc *export.Service, rs *Responder) *ExportHandler {
	return &ExportHandler{svc: svc, rs: rs}
}

func (h *ExportHandler) Incidents(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Format  string                 `json:"format"`
		Filters export.IncidentFilters `json:"filters"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	doc, err := h.svc.Incidents(r.Context(), principal(r), in.Format, in.Filters)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	writeDocument(w, doc)
}
