package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"incidentdesk/core/analytics"
	"incidentdesk/core/audit"
	"incidentdesk/core/auth"
	"incidentdesk/core/export"
	"incidentdesk/core/incidents"
	"incidentdesk/core/store"
	"incidentdesk/core/uploads"
	"incidentdesk/core/users"
	"incidentdesk/core/utils"
	"incidentdesk/core/validation"
)

const jsonBodyMaxBytes = 1 << 20

type envelope struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Code       string            `json:"code,omitempty"`
	Data       any               `json:"data,omitempty"`
	Errors     []string          `json:"errors,omitempty"`
	Pagination *store.Pagination `json:"pagination,omitempty"`
}

// Responder writes the JSON envelope and maps domain errors to statuses.
type Responder struct {
	audit  *audit.Recorder
	logger *utils.Logger
}

func NewResponder(recorder *audit.Recorder, logger *utils.Logger) *Responder {
	return &Responder{audit: recorder, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (rs *Responder) OK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func (rs *Responder) List(w http.ResponseWriter, data any, p store.Pagination) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Pagination: &p})
}

func (rs *Responder) Fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

// Error is the single place domain errors become HTTP responses.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validation.Errors
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "Validation failed", Errors: verrs})
	case errors.Is(err, auth.ErrTokenExpired):
		writeJSON(w, http.StatusUnauthorized, envelope{Success: false, Message: "Token expired", Code: "TOKEN_EXPIRED"})
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrPasswordMismatch):
		rs.Fail(w, http.StatusUnauthorized, capitalize(err.Error()))
	case errors.Is(err, auth.ErrAccountBlocked), errors.Is(err, auth.ErrAccountLocked):
		rs.Fail(w, http.StatusForbidden, capitalize(err.Error()))
	case errors.Is(err, incidents.ErrForbidden),
		errors.Is(err, users.ErrForbidden),
		errors.Is(err, analytics.ErrForbidden),
		errors.Is(err, export.ErrForbidden):
		rs.Fail(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, users.ErrSelfAction),
		errors.Is(err, incidents.ErrInvalidTransition),
		errors.Is(err, incidents.ErrInvalidAssignee),
		errors.Is(err, uploads.ErrNoFiles),
		errors.Is(err, uploads.ErrInvalidName):
		rs.Fail(w, http.StatusBadRequest, capitalize(err.Error()))
	case errors.Is(err, incidents.ErrAssigneeNotFound),
		errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, uploads.ErrNotFound):
		rs.Fail(w, http.StatusNotFound, capitalize(err.Error()))
	case errors.Is(err, store.ErrNotFound):
		rs.Fail(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, auth.ErrDuplicateIdentity):
		rs.Fail(w, http.StatusConflict, capitalize(err.Error()))
	case errors.Is(err, store.ErrConflict):
		rs.Fail(w, http.StatusConflict, "Resource already exists")
	case errors.Is(err, uploads.ErrTooLarge), errors.As(err, &tooLarge):
		rs.Fail(w, http.StatusRequestEntityTooLarge, "Payload too large")
	default:
		rs.internal(w, r, "ERROR", err, debug.Stack())
	}
}

// Recovered answers a request whose handler panicked with rec.
func (rs *Responder) Recovered(w http.ResponseWriter, r *http.Request, rec any) {
	rs.internal(w, r, "PANIC", rec, debug.Stack())
}

// internal logs err with its stack, records a system_error audit entry and
// answers with a generic 500.
func (rs *Responder) internal(w http.ResponseWriter, r *http.Request, kind string, err any, stack []byte) {
	if rs.logger != nil {
		rs.logger.Errorf("%s %s %s: %v\n%s", kind, r.Method, r.URL.Path, err, string(stack))
	}
	if rs.audit != nil {
		entry := audit.Entry{
			Action:       audit.ActionSystemError,
			TargetType:   audit.TargetSystem,
			Status:       audit.StatusFailed,
			ErrorMessage: toString(err),
			Metadata:     map[string]any{"path": r.URL.Path, "method": r.Method},
		}
		if p, ok := auth.PrincipalFrom(r.Context()); ok {
			entry.PerformedBy, entry.UserRole = p.UserID, p.Role
		}
		rs.audit.Record(r.Context(), entry)
	}
	rs.Fail(w, http.StatusInternalServerError, "Internal server error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, jsonBodyMaxBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return validation.Errors{"Request body is required"}
		}
		return validation.Errors{"Invalid JSON body"}
	}
	return nil
}

func principal(r *http.Request) *auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return 0
	}
	return n
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func toString(v any) string {
	switch t := v.(type) {
	case error:
		return t.Error()
	case string:
		return t
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
