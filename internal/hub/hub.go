// Package hub fans committed clipboard entries out to registered observers.
//
// Observers are identified by ID and kept in registration order. Broadcast
// is synchronous: it returns once every observer has been attempted. A
// failing or panicking observer is logged and skipped; it never affects the
// others or the caller.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.klb.dev/clipkeeper/internal/history"
)

// Observer is notified of every committed entry.
type Observer interface {
	ID() string
	// Notify must not block indefinitely; it runs on the monitor goroutine.
	Notify(ctx context.Context, e history.Entry) error
}

// Func adapts a function to an Observer with the given id.
func Func(id string, fn func(ctx context.Context, e history.Entry) error) Observer {
	return funcObserver{id: id, fn: fn}
}

type funcObserver struct {
	id string
	fn func(ctx context.Context, e history.Entry) error
}

func (f funcObserver) ID() string { return f.id }

func (f funcObserver) Notify(ctx context.Context, e history.Entry) error { return f.fn(ctx, e) }

// Hub is the observer registry.
type Hub struct {
	log *slog.Logger

	mu        sync.RWMutex
	order     []string
	observers map[string]Observer
	closed    bool
}

// New returns an empty Hub. log may be nil.
func New(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		log:       log,
		observers: make(map[string]Observer),
	}
}

// Register adds o. Registering an id that is already present replaces the
// observer in place, so it is still notified once per broadcast.
func (h *Hub) Register(o Observer) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	id := o.ID()
	if _, ok := h.observers[id]; !ok {
		h.order = append(h.order, id)
	}
	h.observers[id] = o
	total := len(h.order)
	h.mu.Unlock()

	h.log.Debug("observer registered", "observer", id, "total", total)
}

// Unregister removes o. Unknown observers are ignored.
func (h *Hub) Unregister(o Observer) {
	id := o.ID()
	h.mu.Lock()
	if _, ok := h.observers[id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.observers, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	total := len(h.order)
	h.mu.Unlock()

	h.log.Debug("observer unregistered", "observer", id, "total", total)
}

// Broadcast notifies every observer of e in registration order.
func (h *Hub) Broadcast(ctx context.Context, e history.Entry) {
	h.mu.RLock()
	targets := make([]Observer, 0, len(h.order))
	for _, id := range h.order {
		targets = append(targets, h.observers[id])
	}
	h.mu.RUnlock()

	for _, o := range targets {
		if err := notify(ctx, o, e); err != nil {
			h.log.Error("observer failed", "observer", o.ID(), "entry", e.ID, "err", err)
		}
	}
}

// Len returns the number of registered observers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.order)
}

// Close drops every registration. Later Register calls are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.order = nil
	h.observers = make(map[string]Observer)
	h.mu.Unlock()
}

func notify(ctx context.Context, o Observer, e history.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.Notify(ctx, e)
}
