//go:build linux || darwin || windows

package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"runtime"
	"time"
	"unicode/utf8"

	"golang.design/x/clipboard"

	"go.klb.dev/clipkeeper/internal/history"
)

// selectionOwned reports whether written content lives in this process.
var selectionOwned = runtime.GOOS == "linux"

type desktopBackend struct {
	h handle
	// replaced closes when another program takes over the last write.
	replaced <-chan struct{}
}

// New returns the system clipboard backend. It fails with ErrUnavailable when
// no display server is reachable or the binary was built without CGO on a
// platform that needs it.
func New() (Source, error) {
	if err := initClipboard(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &desktopBackend{}, nil
}

func initClipboard() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return clipboard.Init()
}

func (b *desktopBackend) Name() string { return "system clipboard" }

func (b *desktopBackend) ReadText() (*LiveClip, error) {
	var lc *LiveClip
	err := b.h.with(ErrRead, func() error {
		data := clipboard.Read(clipboard.FmtText)
		if len(data) == 0 {
			return nil
		}
		if !utf8.Valid(data) {
			return fmt.Errorf("%w: text is not valid UTF-8", ErrRead)
		}
		lc = &LiveClip{Content: string(data), Kind: history.KindText, CapturedAt: time.Now()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lc, nil
}

func (b *desktopBackend) ReadImage() (*LiveClip, error) {
	var lc *LiveClip
	err := b.h.with(ErrRead, func() error {
		data := clipboard.Read(clipboard.FmtImage)
		if len(data) == 0 {
			return nil
		}
		if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("%w: image is not PNG: %v", ErrRead, err)
		}
		lc = &LiveClip{
			Content:    base64.StdEncoding.EncodeToString(data),
			Kind:       history.KindImage,
			CapturedAt: time.Now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lc, nil
}

func (b *desktopBackend) Write(content string, kind history.Kind) error {
	return b.h.with(ErrWrite, func() error {
		switch kind {
		case history.KindText:
			b.replaced = clipboard.Write(clipboard.FmtText, []byte(content))
		case history.KindImage:
			data, err := decodeImage(content)
			if err != nil {
				return err
			}
			b.replaced = clipboard.Write(clipboard.FmtImage, data)
		default:
			return fmt.Errorf("%w: %w", ErrWrite, kind.Validate())
		}
		return nil
	})
}

// Hold waits for the selection written last to be taken over. Only Linux
// needs this; macOS and Windows copy the data into the OS on write.
func (b *desktopBackend) Hold(ctx context.Context) error {
	if !selectionOwned {
		return nil
	}
	b.h.mu.Lock()
	replaced := b.replaced
	b.h.mu.Unlock()
	if replaced == nil {
		return nil
	}
	select {
	case <-replaced:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *desktopBackend) Close() {}

// decodeImage turns stored base64 content back into PNG bytes.
func decodeImage(content string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("%w: image is not base64: %v", ErrWrite, err)
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: image is not PNG: %v", ErrWrite, err)
	}
	return data, nil
}
