// Package keeper is the public face of the clipboard history service. It owns
// the store, the clipboard source, the notification hub and the monitor, and
// exposes the operations used by the HTTP API, the gRPC service and the CLI.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.klb.dev/clipkeeper/internal/clip"
	"go.klb.dev/clipkeeper/internal/history"
	"go.klb.dev/clipkeeper/internal/hub"
	"go.klb.dev/clipkeeper/internal/monitor"
	"go.klb.dev/clipkeeper/internal/store"
)

// Options wires a Keeper. Store and Source are required.
type Options struct {
	Store   *store.Store
	Source  clip.Source
	Logger  *slog.Logger
	Monitor monitor.Config

	// Retention bounds applied by Prune. Zero disables a bound.
	MaxItems int
	MaxAge   time.Duration
}

// Stats summarises the running service.
type Stats struct {
	Entries   int64  `json:"entries"`
	Observers int    `json:"observers"`
	Monitor   string `json:"monitor"`
	Source    string `json:"source"`
}

// Keeper coordinates the clipboard history components.
type Keeper struct {
	store  *store.Store
	source clip.Source
	hub    *hub.Hub
	mon    *monitor.Monitor
	log    *slog.Logger

	maxItems int
	maxAge   time.Duration

	mu        sync.Mutex
	listeners map[int]func()
	nextID    int
	closed    bool
}

// New assembles a Keeper. Monitoring is not started.
func New(opts Options) (*Keeper, error) {
	if opts.Store == nil {
		return nil, errors.New("keeper: store is required")
	}
	if opts.Source == nil {
		return nil, errors.New("keeper: clipboard source is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	h := hub.New(log.With("component", "hub"))
	mcfg := opts.Monitor
	mcfg.Logger = log.With("component", "monitor")

	return &Keeper{
		store:     opts.Store,
		source:    opts.Source,
		hub:       h,
		mon:       monitor.New(opts.Source, opts.Store, h, mcfg),
		log:       log,
		maxItems:  opts.MaxItems,
		maxAge:    opts.MaxAge,
		listeners: make(map[int]func()),
	}, nil
}

// StartMonitoring starts the poll loop. It is a no-op while already running.
func (k *Keeper) StartMonitoring() error {
	return k.mon.Start()
}

// StopMonitoring stops the poll loop; safe to call repeatedly.
func (k *Keeper) StopMonitoring() {
	k.mon.Stop()
}

// Monitoring reports the monitor state.
func (k *Keeper) Monitoring() monitor.State {
	return k.mon.State()
}

// History returns entries most recently observed first.
func (k *Keeper) History(ctx context.Context, limit, offset int) ([]history.Entry, error) {
	return k.store.List(ctx, limit, offset)
}

// Search returns entries whose content contains pattern.
func (k *Keeper) Search(ctx context.Context, pattern string, limit int) ([]history.Entry, error) {
	return k.store.Search(ctx, pattern, limit)
}

// Entry returns a single entry, or an error wrapping store.ErrNotFound.
func (k *Keeper) Entry(ctx context.Context, id int64) (history.Entry, error) {
	return k.store.Get(ctx, id)
}

// Delete removes an entry and reports whether it existed.
func (k *Keeper) Delete(ctx context.Context, id int64) (bool, error) {
	ok, err := k.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if ok {
		k.log.Info("entry deleted", "id", id)
		k.changed()
	}
	return ok, nil
}

// Clear removes every entry.
func (k *Keeper) Clear(ctx context.Context) error {
	if err := k.store.Clear(ctx); err != nil {
		return err
	}
	k.log.Info("history cleared")
	k.changed()
	return nil
}

// Restore writes a stored entry back to the clipboard. The monitor then sees
// it as a fresh observation and moves it to the top of the history.
func (k *Keeper) Restore(ctx context.Context, id int64) error {
	e, err := k.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := k.source.Write(e.Content, e.Kind); err != nil {
		return fmt.Errorf("restore %d: %w", id, err)
	}
	k.log.Info("entry restored to clipboard", "id", id, "kind", e.Kind)
	return nil
}

// AddObserver registers o for committed entries.
func (k *Keeper) AddObserver(o hub.Observer) {
	k.hub.Register(o)
}

// RemoveObserver unregisters o.
func (k *Keeper) RemoveObserver(o hub.Observer) {
	k.hub.Unregister(o)
}

// OnChange registers fn to run after entries are deleted or cleared. The
// returned func unregisters it.
func (k *Keeper) OnChange(fn func()) (cancel func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	id := k.nextID
	k.nextID++
	k.listeners[id] = fn
	return func() {
		k.mu.Lock()
		defer k.mu.Unlock()
		delete(k.listeners, id)
	}
}

func (k *Keeper) changed() {
	k.mu.Lock()
	fns := make([]func(), 0, len(k.listeners))
	for _, fn := range k.listeners {
		fns = append(fns, fn)
	}
	k.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Stats reports counters for status endpoints.
func (k *Keeper) Stats(ctx context.Context) (Stats, error) {
	n, err := k.store.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Entries:   n,
		Observers: k.hub.Len(),
		Monitor:   k.mon.State().String(),
		Source:    k.source.Name(),
	}, nil
}

// Prune applies the configured retention bounds.
func (k *Keeper) Prune(ctx context.Context) (int64, error) {
	n, err := k.store.Prune(ctx, k.maxItems, k.maxAge)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		k.log.Info("pruned history", "deleted", n, "max_items", k.maxItems, "max_age", k.maxAge)
		k.changed()
	}
	return n, nil
}

// Close stops monitoring and releases every component.
func (k *Keeper) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	k.mon.Stop()
	k.hub.Close()
	k.source.Close()
	return k.store.Close()
}
