package handlers

import (
	"errors"
	"io"
	"net/http"

	"incidentdesk/core/uploads"
	"incidentdesk/core/validation"
)

const (
	uploadField         = "evidence"
	multipartMemory     = 32 << 20
	multipartFormExtras = 1 << 20
)

type UploadsHandler struct {
	svc *uploads.Service
	rs  *Responder
}

func NewUploadsHandler(svc *uploads.Service, rs *Responder) *UploadsHandler {
	return &UploadsHandler{svc: svc, rs: rs}
}

func (h *UploadsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	limits := h.svc.Limits()
	r.Body = http.MaxBytesReader(w, r.Body, int64(limits.MaxFiles)*limits.MaxFileBytes+multipartFormExtras)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.rs.Error(w, r, uploads.ErrTooLarge)
		case errors.Is(err, http.ErrNotMultipart):
			h.rs.Error(w, r, validation.Errors{"Request must be multipart/form-data"})
		default:
			h.rs.Error(w, r, validation.Errors{"Invalid multipart body"})
		}
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	files, err := h.svc.Save(r.Context(), principal(r), r.MultipartForm.File[uploadField])
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusCreated, "Files uploaded successfully", files)
}

func (h *UploadsHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := urlParam(r, "filename")
	rc, contentType, err := h.svc.Open(r.Context(), name)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (h *UploadsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), principal(r), urlParam(r, "filename")); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "File deleted successfully", nil)
}
