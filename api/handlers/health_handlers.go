package handlers

import (
	"context"
	"net/http"
	"time"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
	rs *Responder
}

func NewHealthHandler(db Pinger, rs *Responder) *HealthHandler {
	return &HealthHandler{db: db, rs: rs}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"timestamp": time.Now().UTC(), "database": "ok"}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status["database"] = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Message: "Database unavailable", Data: status})
			return
		}
	}
	h.rs.OK(w, http.StatusOK, "Server is running", status)
}
