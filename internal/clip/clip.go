// Package clip reads and writes the live system clipboard.
//
// Build constraints select the implementation:
//
//	clip_desktop.go: Linux, macOS and Windows via golang.design/x/clipboard
//	clip_other.go: every other platform; New reports ErrUnavailable
//	memory.go: in-process slot for headless runs and tests
//
// All access to the clipboard handle goes through handle.with, so only one
// read or write is in flight at a time and the handle is released on every
// exit path.
package clip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.klb.dev/clipkeeper/internal/history"
)

var (
	// ErrUnavailable means the OS clipboard cannot be used at all.
	ErrUnavailable = errors.New("clipboard unavailable")
	// ErrRead wraps transient read failures.
	ErrRead = errors.New("clipboard read failed")
	// ErrWrite wraps transient write failures.
	ErrWrite = errors.New("clipboard write failed")
)

// LiveClip is the result of one clipboard sample.
type LiveClip struct {
	Content    string
	Kind       history.Kind
	CapturedAt time.Time
}

// Source is a clipboard slot that can be sampled and replaced.
type Source interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// ReadText returns the current text, or nil, nil when the clipboard is
	// empty or does not hold text.
	ReadText() (*LiveClip, error)

	// ReadImage returns the current image as base64-encoded PNG, or nil, nil
	// when no image is present.
	ReadImage() (*LiveClip, error)

	// Write replaces the clipboard contents. Image content is base64 PNG.
	Write(content string, kind history.Kind) error

	// Close releases any resources held by the backend.
	Close()
}

// Holder is implemented by backends whose written content is served by the
// writing process, as with X11 and Wayland selections. A short-lived process
// that writes to such a clipboard must Hold before exiting or the content is
// lost.
type Holder interface {
	// Hold blocks until another program replaces the content written last,
	// or ctx ends. It returns nil at once when nothing needs holding.
	Hold(ctx context.Context) error
}

// handle serialises access to the underlying clipboard.
type handle struct {
	mu sync.Mutex
}

// with runs fn while holding the clipboard. A panic inside fn is converted
// into an error wrapping failure, so bindings that panic (e.g. CGO disabled)
// cannot take the caller down.
func (h *handle) with(failure error, fn func() error) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", failure, r)
		}
	}()
	return fn()
}
