package store

import (
	"time"

	"go.klb.dev/clipkeeper/internal/history"
)

// record is the persisted row. Times are stored as Unix nanoseconds so that
// ordering never depends on the driver's text encoding of timestamps.
type record struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Content        string `gorm:"column:content;not null"`
	Kind           string `gorm:"column:content_type;size:16;not null"`
	Fingerprint    string `gorm:"column:hash;size:64;not null;uniqueIndex:idx_clipboard_history_hash"`
	FirstSeenNanos int64  `gorm:"column:first_seen_ns;not null"`
	ObservedNanos  int64  `gorm:"column:observed_ns;not null;index:idx_clipboard_history_recent,priority:1"`
}

func (record) TableName() string {
	return "clipboard_history"
}

func (r record) entry() history.Entry {
	return history.Entry{
		ID:          r.ID,
		Content:     r.Content,
		Kind:        history.ParseKind(r.Kind),
		Fingerprint: r.Fingerprint,
		FirstSeenAt: time.Unix(0, r.FirstSeenNanos),
		ObservedAt:  time.Unix(0, r.ObservedNanos),
	}
}

func entries(rows []record) []history.Entry {
	out := make([]history.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entry())
	}
	return out
}
