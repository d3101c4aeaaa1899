package handlers

import (
	"net/http"
	"strings"

	"incidentdesk/core/users"
)

type UsersHandler struct {
	svc *users.Service
	rs  *Responder
}

func NewUsersHandler(svc *users.Service, rs *Responder) *UsersHandler {
	return &UsersHandler{svc: svc, rs: rs}
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, page, err := h.svc.List(r.Context(), principal(r), users.ListQuery{
		Role:   strings.TrimSpace(q.Get("role")),
		Status: strings.TrimSpace(q.Get("status")),
		Search: strings.TrimSpace(q.Get("search")),
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
	})
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.List(w, items, page)
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Get(r.Context(), principal(r), urlParam(r, "id"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "", u)
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in users.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	u, err := h.svc.Create(r.Context(), principal(r), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusCreated, "User created successfully", u)
}

func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in users.UpdateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	u, err := h.svc.Update(r.Context(), principal(r), urlParam(r, "id"), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "User updated successfully", u)
}

func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), principal(r), urlParam(r, "id")); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "User deleted successfully", nil)
}

func (h *UsersHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	u, err := h.svc.ChangeRole(r.Context(), principal(r), urlParam(r, "id"), in.Role)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "User role updated successfully", u)
}

// Block takes an optional {"reason": "..."} body.
func (h *UsersHandler) Block(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &in); err != nil {
			h.rs.Error(w, r, err)
			return
		}
	}
	u, err := h.svc.Block(r.Context(), principal(r), urlParam(r, "id"), in.Reason)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "User blocked successfully", u)
}

func (h *UsersHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Unblock(r.Context(), principal(r), urlParam(r, "id"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.rs.OK(w, http.StatusOK, "User unblocked successfully", u)
}
