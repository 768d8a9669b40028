package grpcservice

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipkeeper/internal/clip"
	"go.klb.dev/clipkeeper/internal/history"
	"go.klb.dev/clipkeeper/internal/keeper"
	"go.klb.dev/clipkeeper/internal/monitor"
	"go.klb.dev/clipkeeper/internal/store"
)

type fixture struct {
	store  *store.Store
	mem    *clip.Memory
	keeper *keeper.Keeper
	addr   string
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	st, err := store.Open(store.Options{Path: filepath.Join(t.TempDir(), "clipboard.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	mem := clip.NewMemory()
	k, err := keeper.New(keeper.Options{
		Store:   st,
		Source:  mem,
		Monitor: monitor.Config{Interval: 10 * time.Millisecond, StopGrace: time.Second},
	})
	if err != nil {
		t.Fatalf("new keeper: %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer()
	Register(srv, New(k, Options{Token: token, Version: "test"}))
	go func() { _ = srv.Serve(lis) }()

	t.Cleanup(func() {
		srv.Stop()
		_ = k.Close()
	})
	return &fixture{store: st, mem: mem, keeper: k, addr: lis.Addr().String()}
}

func (f *fixture) client(t *testing.T, token string) *Client {
	t.Helper()
	c, err := Dial(f.addr, DialOptions{Token: token})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (f *fixture) seed(t *testing.T, contents ...string) []history.Entry {
	t.Helper()
	var out []history.Entry
	for _, c := range contents {
		e, _, err := f.store.Upsert(context.Background(), c, history.KindText)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestListAndSearch(t *testing.T) {
	f := newFixture(t, "")
	f.seed(t, "alpha", "beta", "alphabet")
	c := f.client(t, "")
	ctx := ctxT(t)

	items, err := c.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].Content != "alphabet" || items[1].Content != "beta" {
		t.Fatalf("list = %+v", items)
	}

	items, err = c.Search(ctx, "ALPHA", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("search = %+v", items)
	}
}

func TestNegativeLimitRejected(t *testing.T) {
	f := newFixture(t, "")
	c := f.client(t, "")
	_, err := c.List(ctxT(t), -1, 0)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestGetDeleteClear(t *testing.T) {
	f := newFixture(t, "")
	entries := f.seed(t, "one", "two")
	c := f.client(t, "")
	ctx := ctxT(t)

	e, err := c.Get(ctx, entries[0].ID)
	if err != nil || e.Content != "one" {
		t.Fatalf("get = %+v, %v", e, err)
	}
	if _, err := c.Get(ctx, 999); status.Code(err) != codes.NotFound {
		t.Fatalf("get missing code = %v", status.Code(err))
	}

	ok, err := c.Delete(ctx, entries[0].ID)
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	ok, err = c.Delete(ctx, entries[0].ID)
	if err != nil || ok {
		t.Fatalf("second delete = %v, %v", ok, err)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, _ := f.store.Count(ctx); n != 0 {
		t.Fatalf("remaining = %d", n)
	}
}

func TestRestore(t *testing.T) {
	f := newFixture(t, "")
	e := f.seed(t, "back again")[0]
	c := f.client(t, "")
	ctx := ctxT(t)

	if err := c.Restore(ctx, e.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	lc, err := f.mem.ReadText()
	if err != nil || lc == nil || lc.Content != "back again" {
		t.Fatalf("clipboard = %+v, %v", lc, err)
	}
	if err := c.Restore(ctx, 12345); status.Code(err) != codes.NotFound {
		t.Fatalf("restore missing code = %v", status.Code(err))
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, "")
	f.seed(t, "x", "y")
	c := f.client(t, "")

	st, err := c.Status(ctxT(t))
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Entries != 2 || st.Monitor != "idle" || st.Version != "test" || st.Source != "memory (headless)" {
		t.Fatalf("status = %+v", st)
	}
}

func TestTokenAuth(t *testing.T) {
	f := newFixture(t, "hunter2")
	ctx := ctxT(t)

	if _, err := f.client(t, "").List(ctx, 0, 0); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("no token code = %v", status.Code(err))
	}
	if _, err := f.client(t, "wrong").List(ctx, 0, 0); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("wrong token code = %v", status.Code(err))
	}
	if _, err := f.client(t, "hunter2").List(ctx, 0, 0); err != nil {
		t.Fatalf("good token: %v", err)
	}
}

func TestWatchStreamsCommittedEntries(t *testing.T) {
	f := newFixture(t, "")
	c := f.client(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan history.Entry, 4)
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, func(e history.Entry) { got <- e }) }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		st, err := f.keeper.Stats(context.Background())
		if err == nil && st.Observers == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := f.keeper.StartMonitoring(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.mem.Write("streamed", history.KindText); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case e := <-got:
		if e.Content != "streamed" || e.ID == 0 {
			t.Fatalf("entry = %+v", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no entry streamed")
	}

	cancel()
	select {
	case err := <-done:
		if status.Code(err) != codes.Canceled {
			t.Fatalf("watch returned %v, want Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not return")
	}
}
