package api

import (
	"context"
	"sync"

	"go.klb.dev/clipkeeper/internal/history"
)

// realtime fans history changes out to WebSocket connections. Each
// subscriber has a one-slot signal channel; publishing never blocks and
// signals that arrive while one is pending are coalesced, since every
// update resends the latest page anyway.
type realtime struct {
	mu          sync.RWMutex
	subscribers map[string]chan struct{}
	closed      bool
}

func newRealtime() *realtime {
	return &realtime{subscribers: make(map[string]chan struct{})}
}

// ID implements hub.Observer.
func (r *realtime) ID() string { return "websocket" }

// Notify implements hub.Observer.
func (r *realtime) Notify(context.Context, history.Entry) error {
	r.publish()
	return nil
}

func (r *realtime) publish() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// subscribe registers id. The channel is closed when the dispatcher shuts
// down; the returned func unregisters.
func (r *realtime) subscribe(id string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	r.subscribers[id] = ch
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.subscribers[id]; ok && cur == ch {
			delete(r.subscribers, id)
			close(ch)
		}
	}
}

func (r *realtime) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

func (r *realtime) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, ch := range r.subscribers {
		delete(r.subscribers, id)
		close(ch)
	}
}
