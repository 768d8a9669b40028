package clip

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"go.klb.dev/clipkeeper/internal/history"
)

func TestHandleConvertsPanicsAndReleases(t *testing.T) {
	var h handle
	err := h.with(ErrRead, func() error { panic("binding exploded") })
	if !errors.Is(err, ErrRead) {
		t.Fatalf("expected ErrRead, got %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = h.with(ErrRead, func() error { return nil })
		close(done)
	}()
	<-done
}

func TestHandleIsExclusive(t *testing.T) {
	var (
		h       handle
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.with(ErrWrite, func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
}

func TestMemoryHoldsASingleSlot(t *testing.T) {
	m := NewMemory()

	if lc, err := m.ReadText(); err != nil || lc != nil {
		t.Fatalf("expected empty clipboard, got %+v, %v", lc, err)
	}

	if err := m.Write("hello", history.KindText); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	lc, err := m.ReadText()
	if err != nil || lc == nil || lc.Content != "hello" || lc.Kind != history.KindText {
		t.Fatalf("unexpected text read %+v, %v", lc, err)
	}

	img := testPNG(t)
	if err := m.Write(img, history.KindImage); err != nil {
		t.Fatalf("write image failed: %v", err)
	}
	if lc, _ := m.ReadText(); lc != nil {
		t.Fatalf("expected image write to replace text, got %+v", lc)
	}
	lc, err = m.ReadImage()
	if err != nil || lc == nil || lc.Content != img || lc.Kind != history.KindImage {
		t.Fatalf("unexpected image read %+v, %v", lc, err)
	}
}

func TestMemoryRejectsUnknownKind(t *testing.T) {
	err := NewMemory().Write("x", history.KindUnknown)
	if !errors.Is(err, ErrWrite) || !errors.Is(err, history.ErrUnsupportedKind) {
		t.Fatalf("expected ErrWrite wrapping ErrUnsupportedKind, got %v", err)
	}
}

func testPNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
