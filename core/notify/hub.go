// Package notify fans incident events out to live subscribers.
//
// Delivery is best-effort: a subscriber whose buffer is full misses the event.
// There is no acknowledgement, retry or persistence.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventIncidentCreated       = "incident:created"
	EventIncidentUpdated       = "incident:updated"
	EventIncidentStatusChanged = "incident:status-changed"
	EventIncidentAssigned      = "incident:assigned"
	EventUserRoleChanged       = "user:role-changed"
)

type Event struct {
	Name      string    `json:"event"`
	Channel   string    `json:"channel"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func UserChannel(userID string) string { return "user:" + userID }
func RoleChannel(role string) string   { return "role:" + role }

// Publisher is what domain services emit events through.
type Publisher interface {
	Publish(ctx context.Context, channel, name string, data any)
}

type subscriber struct {
	ch       chan Event
	channels map[string]struct{}
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	next   int
	buffer int

	published prometheus.Counter
	dropped   prometheus.Counter
}

type HubOption func(*Hub)

func WithCounters(published, dropped prometheus.Counter) HubOption {
	return func(h *Hub) {
		h.published = published
		h.dropped = dropped
	}
}

func NewHub(buffer int, opts ...HubOption) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	h := &Hub{subs: make(map[int]*subscriber), buffer: buffer}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe joins the given channels. The returned channel is closed when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, channels ...string) <-chan Event {
	sub := &subscriber{ch: make(chan Event, h.buffer), channels: make(map[string]struct{}, len(channels))}
	for _, c := range channels {
		sub.channels[c] = struct{}{}
	}
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(sub.ch)
		h.mu.Unlock()
	}()
	return sub.ch
}

func (h *Hub) Publish(_ context.Context, channel, name string, data any) {
	h.Deliver(Event{Name: name, Channel: channel, Data: data, Timestamp: time.Now().UTC()})
}

// Deliver hands evt to every local subscriber of its channel without blocking.
func (h *Hub) Deliver(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if _, ok := sub.channels[evt.Channel]; !ok {
			continue
		}
		select {
		case sub.ch <- evt:
			if h.published != nil {
				h.published.Inc()
			}
		default:
			if h.dropped != nil {
				h.dropped.Inc()
			}
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
