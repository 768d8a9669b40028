// Package store persists the deduplicated clipboard history in SQLite.
//
// Every distinct payload is stored once, keyed by its SHA-256 fingerprint.
// Observing the same payload again refreshes the row's observation time
// instead of inserting a new row, so identical content that disappears and
// reappears moves back to the top of the history while keeping its id.
//
// Writes are serialised by a mutex and a single pooled connection; each
// operation runs in its own transaction.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go.klb.dev/clipkeeper/internal/history"
)

const (
	// DefaultLimit is used by List and Search when limit <= 0.
	DefaultLimit = 100

	dsnPragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
)

// ErrNotFound is returned when an entry id does not exist.
var ErrNotFound = errors.New("entry not found")

// Options configures Open.
type Options struct {
	// Path is the SQLite database file. ":memory:" opens a private in-memory db.
	Path string
	// Clock returns the observation time. Defaults to time.Now.
	Clock func() time.Time
	// Logger receives SQL errors and slow queries. nil discards.
	Logger *slog.Logger
}

// Store is the clipboard history.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
	log   *slog.Logger

	mu sync.Mutex // serialises writers
}

// DefaultPath returns $HOME/.clipkeeper/clipboard.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "clipboard.db"
	}
	return filepath.Join(home, ".clipkeeper", "clipboard.db")
}

// Open opens (creating if needed) the database at opts.Path and migrates the schema.
func Open(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("store: database path is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	dsn := opts.Path
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
			return nil, fmt.Errorf("store: create database dir: %w", err)
		}
		dsn = opts.Path + "?" + dsnPragmas
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: newSQLLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", opts.Path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&record{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_clipboard_history_order ON clipboard_history(observed_ns DESC, id DESC)").Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: create index: %w", err)
	}

	log.Info("database initialized", "path", opts.Path)
	return &Store{db: db, clock: clock, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Upsert records an observation of content. A new fingerprint inserts a row
// and reports created == true; a known fingerprint refreshes ObservedAt and
// keeps the original id. Empty content is ignored: the zero Entry is returned
// with no error.
func (s *Store) Upsert(ctx context.Context, content string, kind history.Kind) (history.Entry, bool, error) {
	if content == "" {
		return history.Entry{}, false, nil
	}
	if err := kind.Validate(); err != nil {
		return history.Entry{}, false, fmt.Errorf("store: upsert: %w", err)
	}

	fp := history.Fingerprint(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UnixNano()
	var (
		stored  record
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing record
		err := tx.Select("id").Where("hash = ?", fp).Take(&existing).Error
		switch {
		case err == nil:
			if err := tx.Model(&record{}).Where("id = ?", existing.ID).
				Update("observed_ns", now).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			row := record{
				Content:        content,
				Kind:           string(kind),
				Fingerprint:    fp,
				FirstSeenNanos: now,
				ObservedNanos:  now,
			}
			// The unique index stays the final arbiter if another writer
			// got there first.
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "hash"}},
				DoUpdates: clause.Assignments(map[string]any{"observed_ns": now}),
			}).Create(&row).Error; err != nil {
				return err
			}
		default:
			return err
		}
		return tx.Where("hash = ?", fp).Take(&stored).Error
	})
	if err != nil {
		return history.Entry{}, false, fmt.Errorf("store: upsert: %w", err)
	}
	return stored.entry(), created, nil
}

// List returns entries most recently observed first, tie-broken by id.
func (s *Store) List(ctx context.Context, limit, offset int) ([]history.Entry, error) {
	limit, offset = normalizePage(limit, offset)
	var rows []record
	err := s.recent(s.db.WithContext(ctx)).
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return entries(rows), nil
}

// Search returns entries whose content contains pattern, in List order.
// Matching uses SQLite LIKE: case-insensitive for ASCII letters, exact for
// everything else. Wildcard characters in pattern match literally.
func (s *Store) Search(ctx context.Context, pattern string, limit int) ([]history.Entry, error) {
	if pattern == "" {
		return s.List(ctx, limit, 0)
	}
	limit, _ = normalizePage(limit, 0)
	var rows []record
	err := s.recent(s.db.WithContext(ctx)).
		Where(`content LIKE ? ESCAPE '\'`, "%"+escapeLike(pattern)+"%").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return entries(rows), nil
}

// Get returns the entry with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (history.Entry, error) {
	var row record
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return history.Entry{}, fmt.Errorf("store: get %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return history.Entry{}, fmt.Errorf("store: get %d: %w", id, err)
	}
	return row.entry(), nil
}

// Delete removes one entry and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&record{})
	if res.Error != nil {
		return false, fmt.Errorf("store: delete %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&record{}).Error; err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&record{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Prune deletes entries not observed within maxAge and everything beyond the
// maxItems most recent entries. A zero bound is not applied. It returns the
// number of deleted entries.
func (s *Store) Prune(ctx context.Context, maxItems int, maxAge time.Duration) (int64, error) {
	if maxItems <= 0 && maxAge <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if maxAge > 0 {
			cutoff := s.clock().Add(-maxAge).UnixNano()
			res := tx.Where("observed_ns < ?", cutoff).Delete(&record{})
			if res.Error != nil {
				return res.Error
			}
			deleted += res.RowsAffected
		}
		if maxItems > 0 {
			keep := s.recent(tx.Model(&record{})).Select("id").Limit(maxItems)
			res := tx.Where("id NOT IN (?)", keep).Delete(&record{})
			if res.Error != nil {
				return res.Error
			}
			deleted += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return deleted, nil
}

func (s *Store) recent(tx *gorm.DB) *gorm.DB {
	return tx.Order("observed_ns DESC").Order("id DESC")
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
