package hub

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.klb.dev/clipkeeper/internal/history"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) observer(id string) Observer {
	return Func(id, func(_ context.Context, e history.Entry) error {
		r.mu.Lock()
		r.calls = append(r.calls, id+":"+e.Content)
		r.mu.Unlock()
		return nil
	})
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestBroadcastIsolatesFailingObservers(t *testing.T) {
	h := New(nil)
	var rec recorder

	h.Register(Func("failing", func(context.Context, history.Entry) error {
		return errors.New("boom")
	}))
	h.Register(rec.observer("second"))

	h.Broadcast(context.Background(), history.Entry{ID: 1, Content: "a"})
	h.Broadcast(context.Background(), history.Entry{ID: 2, Content: "b"})

	got := rec.snapshot()
	if len(got) != 2 || got[0] != "second:a" || got[1] != "second:b" {
		t.Fatalf("expected second observer once per broadcast, got %v", got)
	}
}

func TestBroadcastRecoversPanickingObservers(t *testing.T) {
	h := New(nil)
	var rec recorder

	h.Register(Func("panics", func(context.Context, history.Entry) error {
		panic("observer bug")
	}))
	h.Register(rec.observer("after"))

	h.Broadcast(context.Background(), history.Entry{Content: "x"})

	if got := rec.snapshot(); len(got) != 1 || got[0] != "after:x" {
		t.Fatalf("expected observer after a panic to run, got %v", got)
	}
}

func TestRegisterIsIdempotentAndOrdered(t *testing.T) {
	h := New(nil)
	var rec recorder

	h.Register(rec.observer("one"))
	h.Register(rec.observer("two"))
	h.Register(rec.observer("one"))

	if h.Len() != 2 {
		t.Fatalf("expected 2 observers, got %d", h.Len())
	}

	h.Broadcast(context.Background(), history.Entry{Content: "c"})
	got := rec.snapshot()
	if len(got) != 2 || got[0] != "one:c" || got[1] != "two:c" {
		t.Fatalf("expected registration order without duplicates, got %v", got)
	}
}

func TestUnregister(t *testing.T) {
	h := New(nil)
	var rec recorder

	one := rec.observer("one")
	h.Register(one)
	h.Register(rec.observer("two"))

	h.Unregister(one)
	h.Unregister(one)
	h.Unregister(rec.observer("never-registered"))

	h.Broadcast(context.Background(), history.Entry{Content: "d"})
	if got := rec.snapshot(); len(got) != 1 || got[0] != "two:d" {
		t.Fatalf("expected only remaining observer, got %v", got)
	}
}

func TestCloseDropsObservers(t *testing.T) {
	h := New(nil)
	var rec recorder

	h.Register(rec.observer("one"))
	h.Close()
	h.Register(rec.observer("late"))

	h.Broadcast(context.Background(), history.Entry{Content: "e"})
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("expected no notifications after close, got %v", got)
	}
	if h.Len() != 0 {
		t.Fatalf("expected empty hub after close, got %d", h.Len())
	}
}

func TestObserverMayUnregisterDuringBroadcast(t *testing.T) {
	h := New(nil)
	var rec recorder

	var self Observer
	self = Func("once", func(context.Context, history.Entry) error {
		h.Unregister(self)
		return nil
	})
	h.Register(self)
	h.Register(rec.observer("other"))

	h.Broadcast(context.Background(), history.Entry{Content: "1"})
	h.Broadcast(context.Background(), history.Entry{Content: "2"})

	if h.Len() != 1 {
		t.Fatalf("expected self-removing observer to be gone, got %d observers", h.Len())
	}
	if got := rec.snapshot(); len(got) != 2 {
		t.Fatalf("expected other observer on both broadcasts, got %v", got)
	}
}
