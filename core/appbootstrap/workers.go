package appbootstrap

import (
	"context"
	"sync"
	"time"

	"incidentdesk/core/utils"
)

const (
	relayMinBackoff = time.Second
	relayMaxBackoff = 30 * time.Second
)

type relayRunner interface {
	Run(ctx context.Context) error
}

// relayWorker runs the Redis notification relay for the server lifetime and
// restarts it with backoff whenever the subscription fails or drops.
type relayWorker struct {
	relay      relayRunner
	logger     *utils.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newRelayWorker(relay relayRunner, logger *utils.Logger) *relayWorker {
	return &relayWorker{relay: relay, logger: logger, minBackoff: relayMinBackoff, maxBackoff: relayMaxBackoff}
}

func (w *relayWorker) StartWithContext(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		w.run(runCtx)
	}()
	w.logger.Printf("notify relay started")
	return nil
}

func (w *relayWorker) run(ctx context.Context) {
	delay := w.minBackoff
	for {
		started := time.Now()
		err := w.relay.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > w.maxBackoff {
			delay = w.minBackoff
		}
		if err != nil {
			w.logger.Errorf("notify relay: %v, retrying in %s", err, delay)
		} else {
			w.logger.Warnf("notify relay subscription closed, retrying in %s", delay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, w.maxBackoff)
	}
}

func (w *relayWorker) StopWithContext(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
