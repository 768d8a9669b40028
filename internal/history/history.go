// Package history defines the clipboard history entry shared by the store,
// the monitor, the notification hub and the API layers.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the payload carried by an Entry.
type Kind string

const (
	KindText    Kind = "text"
	KindImage   Kind = "image"
	KindUnknown Kind = "unknown"
)

// ErrUnsupportedKind is returned when a kind cannot be written or stored.
var ErrUnsupportedKind = errors.New("unsupported content kind")

// ParseKind converts a stored or user supplied string to a Kind.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "text/plain":
		return KindText
	case "image", "image/png":
		return KindImage
	default:
		return KindUnknown
	}
}

// MIME returns the interchange MIME type for k.
func (k Kind) MIME() string {
	switch k {
	case KindText:
		return "text/plain"
	case KindImage:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// Validate reports whether k may be persisted or written to the clipboard.
func (k Kind) Validate() error {
	if k == KindText || k == KindImage {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedKind, string(k))
}

// Entry is one persisted, deduplicated clipboard observation.
//
// Content is UTF-8 text for KindText and base64-encoded PNG for KindImage.
// ObservedAt is refreshed every time the same content is seen again;
// FirstSeenAt never changes after insert.
type Entry struct {
	ID          int64     `json:"id"`
	Content     string    `json:"content"`
	Kind        Kind      `json:"content_type"`
	Fingerprint string    `json:"hash"`
	FirstSeenAt time.Time `json:"first_seen"`
	ObservedAt  time.Time `json:"timestamp"`
}

// Fingerprint returns the lowercase hex SHA-256 digest of content.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Preview returns at most n runes of the content, with an ellipsis when cut.
// Images are summarised by their encoded size.
func (e Entry) Preview(n int) string {
	if e.Kind == KindImage {
		return fmt.Sprintf("[image, %d bytes base64]", len(e.Content))
	}
	r := []rune(e.Content)
	if len(r) <= n {
		return e.Content
	}
	return string(r[:n]) + "…"
}
