// Package monitor implements the clipboard polling loop.
//
// The system clipboard offers no portable change notification, so the
// monitor samples it on a fixed interval. Each cycle reads text, then image;
// content that differs from the last value handled for its kind is upserted
// into the store and the stored entry is broadcast to observers before the
// next read. A kind that reads back empty is forgotten, so text copied again
// after an image counts as a change. The store's own fingerprint dedup turns
// content that reappears later (A, B, A) into a refresh of the existing
// entry.
//
// A failing cycle is logged and the loop carries on after a short backoff;
// only Stop ends it. A failure identical to the previous one is logged at
// debug level so a stuck clipboard does not flood the log.
package monitor

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
)

const (
	// DefaultInterval is the pause between poll cycles.
	DefaultInterval = 300 * time.Millisecond
	// DefaultBackoff is added to the interval after a failed cycle.
	DefaultBackoff = 100 * time.Millisecond
	// DefaultStopGrace bounds how long Stop waits for the loop to exit.
	DefaultStopGrace = 5 * time.Second
)

// ErrStopping is returned by Start while a previous loop is still draining.
var ErrStopping = errors.New("monitor is stopping")

// State is the lifecycle state of a Monitor.
type State int

const (
	// Idle means no loop is running; Start may be called.
	Idle State = iota
	// Running means the loop is polling the source.
	Running
	// Stopping means Stop was called and the loop has not exited yet.
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Store persists observed content.
type Store interface {
	Upsert(ctx context.Context, content string, kind history.Kind) (history.Entry, bool, error)
}

// Broadcaster receives committed entries.
type Broadcaster interface {
	Broadcast(ctx context.Context, e history.Entry)
}

// Config tunes the loop. Zero values select the defaults.
type Config struct {
	Interval  time.Duration
	Backoff   time.Duration
	StopGrace time.Duration
	Logger    *slog.Logger
}

// Monitor polls a clip.Source and commits changes.
type Monitor struct {
	source clip.Source
	store  Store
	hub    Broadcaster
	log    *slog.Logger

	interval  time.Duration
	backoff   time.Duration
	stopGrace time.Duration

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an idle Monitor.
func New(source clip.Source, store Store, b Broadcaster, cfg Config) *Monitor {
	m := &Monitor{
		source:    source,
		store:     store,
		hub:       b,
		log:       cfg.Logger,
		interval:  cfg.Interval,
		backoff:   cfg.Backoff,
		stopGrace: cfg.StopGrace,
	}
	if m.log == nil {
		m.log = slog.New(slog.DiscardHandler)
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.backoff <= 0 {
		m.backoff = DefaultBackoff
	}
	if m.stopGrace <= 0 {
		m.stopGrace = DefaultStopGrace
	}
	return m
}

// State reports the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start launches the polling loop. It is a no-op while running.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Running:
		return nil
	case Stopping:
		return ErrStopping
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.state, m.cancel, m.done = Running, cancel, done
	go m.loop(ctx, done)

	m.log.Info("clipboard monitoring started",
		"source", m.source.Name(),
		"interval", m.interval,
	)
	return nil
}

// Stop signals the loop and waits up to the stop grace period for it to
// exit. It may be called from any goroutine, any number of times.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state != Running {
		m.mu.Unlock()
		return
	}
	m.state = Stopping
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()

	t := time.NewTimer(m.stopGrace)
	defer t.Stop()
	select {
	case <-done:
		m.log.Info("clipboard monitoring stopped")
	case <-t.C:
		m.log.Warn("monitor loop did not stop cleanly", "grace", m.stopGrace)
	}
}

// Run starts monitoring, blocks until ctx is done, then stops.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return nil
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.state, m.cancel, m.done = Idle, nil, nil
		m.mu.Unlock()
		close(done)
	}()

	// Last content handled per kind; owned by this goroutine.
	last := make(map[history.Kind]string, 2)

	var lastErr string
	for ctx.Err() == nil {
		delay := m.interval
		if err := m.cycle(ctx, last); err != nil {
			if msg := err.Error(); msg != lastErr {
				m.log.Error("clipboard monitoring error", "err", err)
				lastErr = msg
			} else {
				m.log.Debug("clipboard monitoring error repeated", "err", err)
			}
			delay += m.backoff
		} else if lastErr != "" {
			m.log.Info("clipboard monitoring recovered")
			lastErr = ""
		}
		if !sleep(ctx, delay) {
			return
		}
	}
}

// cycle runs one text-then-image pass. A stop request is honoured between
// the two reads, never in the middle of an upsert or broadcast.
func (m *Monitor) cycle(ctx context.Context, last map[history.Kind]string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in poll cycle: %v", r)
		}
	}()

	reads := []struct {
		kind history.Kind
		read func() (*clip.LiveClip, error)
	}{
		{history.KindText, m.source.ReadText},
		{history.KindImage, m.source.ReadImage},
	}

	var errs []error
	for _, r := range reads {
		if ctx.Err() != nil {
			break
		}
		if err := m.handle(context.WithoutCancel(ctx), r.kind, r.read, last); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Monitor) handle(ctx context.Context, kind history.Kind, read func() (*clip.LiveClip, error), last map[history.Kind]string) error {
	lc, err := read()
	if err != nil {
		return err
	}
	if lc == nil || lc.Content == "" {
		delete(last, kind)
		return nil
	}
	if last[lc.Kind] == lc.Content {
		return nil
	}

	e, created, err := m.store.Upsert(ctx, lc.Content, lc.Kind)
	if err != nil {
		return err
	}
	last[lc.Kind] = lc.Content
	if e.ID == 0 {
		return nil
	}

	hub.LogEntry(m.log, "clipboard changed", e, created)
	m.hub.Broadcast(ctx, e)
	return nil
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
