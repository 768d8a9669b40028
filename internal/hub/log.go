package hub

import (
	"context"
	"log/slog"

	"go.klb.dev/clipkeeper/internal/history"
)

// LogEntry logs a committed entry at INFO (id, kind, size) and its content
// preview at DEBUG.
func LogEntry(log *slog.Logger, event string, e history.Entry, created bool) {
	log.Info(event, "id", e.ID, "kind", e.Kind, "size_bytes", len(e.Content), "new", created)

	if !log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	log.Debug("clipboard entry", "id", e.ID, "preview", e.Preview(120))
}
