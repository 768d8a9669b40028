package clip

import (
	"fmt"
	"time"

	"go.klb.dev/clipkeeper/internal/history"
)

// Memory is an in-process clipboard slot for environments without a display
// server (headless servers, containers, CI). Like the OS clipboard it holds
// a single value: writing text clears the image and vice versa.
type Memory struct {
	h     handle
	text  string
	image string
}

// NewMemory returns an empty in-memory clipboard.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Name() string { return "memory (headless)" }

func (m *Memory) ReadText() (*LiveClip, error) {
	var lc *LiveClip
	err := m.h.with(ErrRead, func() error {
		if m.text != "" {
			lc = &LiveClip{Content: m.text, Kind: history.KindText, CapturedAt: time.Now()}
		}
		return nil
	})
	return lc, err
}

func (m *Memory) ReadImage() (*LiveClip, error) {
	var lc *LiveClip
	err := m.h.with(ErrRead, func() error {
		if m.image != "" {
			lc = &LiveClip{Content: m.image, Kind: history.KindImage, CapturedAt: time.Now()}
		}
		return nil
	})
	return lc, err
}

func (m *Memory) Write(content string, kind history.Kind) error {
	return m.h.with(ErrWrite, func() error {
		switch kind {
		case history.KindText:
			m.text, m.image = content, ""
		case history.KindImage:
			m.text, m.image = "", content
		default:
			return fmt.Errorf("%w: %w", ErrWrite, kind.Validate())
		}
		return nil
	})
}

func (m *Memory) Close() {}
