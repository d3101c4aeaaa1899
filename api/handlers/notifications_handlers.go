package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"incidentdesk/core/notify"
	"incidentdesk/core/utils"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// NotificationsHandler streams hub events to a WebSocket client. The caller
// joins its own user channel and the channel of its role.
type NotificationsHandler struct {
	hub      *notify.Hub
	upgrader websocket.Upgrader
	logger   *utils.Logger
}

func NewNotificationsHandler(hub *notify.Hub, allowedOrigin string, logger *utils.Logger) *NotificationsHandler {
	h := &NotificationsHandler{hub: hub, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return originAllowed(r, allowedOrigin) },
	}
	return h
}

func originAllowed(r *http.Request, allowed string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if allowed != "" && strings.EqualFold(strings.TrimRight(origin, "/"), strings.TrimRight(allowed, "/")) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

func (h *NotificationsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("ws upgrade user=%s: %v", p.UserID, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	events := h.hub.Subscribe(ctx, notify.UserChannel(p.UserID), notify.RoleChannel(p.Role))
	h.logger.Printf("ws connected user=%s role=%s", p.UserID, p.Role)

	go func() {
		defer cancel()
		conn.SetReadLimit(1024)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Printf("ws closed user=%s: %v", p.UserID, err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			h.logger.Printf("ws disconnected user=%s", p.UserID)
			return
		}
	}
}
