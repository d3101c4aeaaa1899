package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func urlParam(r *http.Request, key string) string {
	if v := strings.TrimSpace(chi.URLParam(r, key)); v != "" {
		return v
	}
	// Fallback for direct handler tests without chi route context.
	segments := strings.Split(strings.Trim(strings.TrimSpace(r.URL.Path), "/"), "/")
	for _, marker := range paramMarkers[key] {
		if v := paramAfter(segments, marker); v != "" {
			return v
		}
	}
	return ""
}

var paramMarkers = map[string][]string{
	"id":         {"incidents", "users", "audit-logs"},
	"userId":     {"user"},
	"incidentId": {"incident"},
	"filename":   {"evidence"},
	"token":      {"reset-password"},
}

func paramAfter(segments []string, marker string) string {
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == marker && strings.TrimSpace(segments[i+1]) != "" {
			return segments[i+1]
		}
	}
	return ""
}
