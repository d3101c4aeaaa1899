package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"incidentdesk/core/auth"
	"incidentdesk/core/incidents"
	"incidentdesk/core/store"
	"incidentdesk/core/uploads"
	"incidentdesk/core/users"
	"incidentdesk/core/validation"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestResponderErrorStatusMapping(t *testing.T) {
	rs := NewResponder(nil, nil)
	cases := []struct {
		err    error
		status int
	}{
		{validation.Errors{"title is required"}, http.StatusBadRequest},
		{users.ErrSelfAction, http.StatusBadRequest},
		{incidents.ErrInvalidTransition, http.StatusBadRequest},
		{uploads.ErrInvalidName, http.StatusBadRequest},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{auth.ErrTokenExpired, http.StatusUnauthorized},
		{auth.ErrAccountBlocked, http.StatusForbidden},
		{incidents.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("get incident: %w", store.ErrNotFound), http.StatusNotFound},
		{uploads.ErrNotFound, http.StatusNotFound},
		{auth.ErrDuplicateIdentity, http.StatusConflict},
		{uploads.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents", nil)
		rr := httptest.NewRecorder()
		rs.Error(rr, req, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())

		var body envelope
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.False(t, body.Success)
	}
}

func TestResponderValidationAndExpiredBodies(t *testing.T) {
	rs := NewResponder(nil, nil)

	rr := httptest.NewRecorder()
	rs.Error(rr, httptest.NewRequest(http.MethodPost, "/", nil), validation.Errors{"a", "b"})
	var body envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Validation failed", body.Message)
	require.Equal(t, []string{"a", "b"}, body.Errors)

	rr = httptest.NewRecorder()
	rs.Error(rr, httptest.NewRequest(http.MethodGet, "/", nil), auth.ErrTokenExpired)
	body = envelope{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "TOKEN_EXPIRED", body.Code)
}

func TestInternalErrorHidesDetails(t *testing.T) {
	rs := NewResponder(nil, nil)
	rr := httptest.NewRecorder()
	rs.Error(rr, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: relation does not exist"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "relation")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Title string `json:"title"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"x"}`))
	require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &dst))
	require.Equal(t, "x", dst.Title)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err := decodeJSON(httptest.NewRecorder(), req, &dst)
	require.Equal(t, validation.Errors{"Request body is required"}, err)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	err = decodeJSON(httptest.NewRecorder(), req, &dst)
	require.Equal(t, validation.Errors{"Invalid JSON body"}, err)
}

func TestURLParamPrefersChiThenPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents/abc/status", nil)
	require.Equal(t, "abc", urlParam(req, "id"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/upload/evidence/1700000000000-aa.png", nil)
	require.Equal(t, "1700000000000-aa.png", urlParam(req, "filename"))

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "from-chi")
	req = httptest.NewRequest(http.MethodGet, "/whatever", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	require.Equal(t, "from-chi", urlParam(req, "id"))
}
