package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.klb.dev/clipkeeper/internal/clip"
)

// ownedClipboard is a Memory clipboard whose writes must be held until
// replaced is closed.
type ownedClipboard struct {
	*clip.Memory
	replaced chan struct{}
}

func (o *ownedClipboard) Hold(ctx context.Context) error {
	select {
	case <-o.replaced:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestHoldClipboardWaitsUntilReplaced(t *testing.T) {
	src := &ownedClipboard{Memory: clip.NewMemory(), replaced: make(chan struct{})}
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- holdClipboard(context.Background(), src, time.Minute, &out) }()

	select {
	case err := <-done:
		t.Fatalf("returned before the clipboard was replaced: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(src.replaced)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("hold: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("hold did not return after replacement")
	}
}

func TestHoldClipboardReleasesAfterTimeout(t *testing.T) {
	src := &ownedClipboard{Memory: clip.NewMemory(), replaced: make(chan struct{})}
	var out bytes.Buffer
	if err := holdClipboard(context.Background(), src, 20*time.Millisecond, &out); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if !strings.Contains(out.String(), "Released the clipboard after") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestHoldClipboardReleasesOnCancel(t *testing.T) {
	src := &ownedClipboard{Memory: clip.NewMemory(), replaced: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	if err := holdClipboard(ctx, src, time.Minute, &out); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if !strings.Contains(out.String(), "Released the clipboard.") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestHoldClipboardSkipsBackendsThatKeepData(t *testing.T) {
	var out bytes.Buffer
	if err := holdClipboard(context.Background(), clip.NewMemory(), time.Minute, &out); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output %q", out.String())
	}

	src := &ownedClipboard{Memory: clip.NewMemory(), replaced: make(chan struct{})}
	if err := holdClipboard(context.Background(), src, 0, &out); err != nil {
		t.Fatalf("hold disabled: %v", err)
	}
}
