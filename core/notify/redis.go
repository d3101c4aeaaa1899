package notify

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"incidentdesk/core/utils"

	"github.com/redis/go-redis/v9"
)

// RedisRelay publishes events to a Redis channel and delivers everything
// received on it to the local hub, so every instance serves its own sockets.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *utils.Logger

	subscribed atomic.Bool
}

func NewRedisRelay(client *redis.Client, channel string, hub *Hub, logger *utils.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, hub: hub, logger: logger}
}

// Publish delivers to the local hub directly when Redis is unreachable or this
// instance is not subscribed, so local sockets keep receiving events.
func (r *RedisRelay) Publish(ctx context.Context, channel, name string, data any) {
	evt := Event{Name: name, Channel: channel, Data: data, Timestamp: time.Now().UTC()}
	payload, err := json.Marshal(evt)
	if err != nil {
		r.logger.Warnf("notify encode %s: %v", name, err)
		return
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warnf("notify redis publish %s: %v", name, err)
		r.hub.Deliver(evt)
		return
	}
	if !r.subscribed.Load() {
		r.hub.Deliver(evt)
	}
}

// Subscribed reports whether Run currently holds a live subscription.
func (r *RedisRelay) Subscribed() bool { return r.subscribed.Load() }

// Run relays messages until ctx ends or the subscription drops. It returns
// the error of a failed subscribe; callers restart it.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evt, err := decodeEvent(msg.Payload)
			if err != nil {
				r.logger.Warnf("notify redis decode: %v", err)
				continue
			}
			r.hub.Deliver(evt)
		}
	}
}

func decodeEvent(payload string) (Event, error) {
	var evt Event
	err := json.Unmarshal([]byte(payload), &evt)
	return evt, err
}
