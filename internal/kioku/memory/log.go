// Package memory keeps the interaction history: one entry per user/assistant
// exchange, bounded by a FIFO window, plus a periodically compacted digest of
// the longer exchanges.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Kioku/internal/kioku/store"
	"github.com/bdobrica/Kioku/internal/kioku/writer"
)

// DefaultMaxEntries bounds the history when the document does not set
// max_entries.
const DefaultMaxEntries = 200

// Entry is one recorded exchange.
type Entry struct {
	ID         string   `json:"id,omitempty"`
	Timestamp  string   `json:"timestamp"` // UTC, RFC 3339 with trailing Z
	User       string   `json:"user"`
	Assistant  string   `json:"assistant"`
	Topics     []string `json:"topics"`
	Importance int      `json:"importance"`
}

// Document is the persisted memory layout.
type Document struct {
	History    []Entry `json:"history"`
	MaxEntries int     `json:"max_entries,omitempty"`
}

// Log owns the memory document. All access goes through its writer queue,
// and every call reads the document from the backend, so appends made by
// another process sharing the data directory are visible.
type Log struct {
	backend store.Backend
	queue   *writer.Queue
	logger  *slog.Logger
	now     func() time.Time
}

// Init writes an empty memory document when none exists. An existing
// document is left untouched (and must be valid).
func Init(ctx context.Context, b store.Backend, maxEntries int) error {
	var doc Document
	err := store.Load(ctx, b, store.KeyMemory, store.Schema(store.KeyMemory), &doc)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return err
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return store.Save(ctx, b, store.KeyMemory, Document{History: []Entry{}, MaxEntries: maxEntries})
}

// Open checks that the memory document exists and is valid and returns a
// Log over it. A missing document is returned as store.ErrNotFound.
func Open(ctx context.Context, b store.Backend, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := load(ctx, b); err != nil {
		return nil, fmt.Errorf("memory: open: %w", err)
	}
	return &Log{
		backend: b,
		queue:   writer.Start(store.KeyMemory),
		logger:  logger,
		now:     time.Now,
	}, nil
}

func load(ctx context.Context, b store.Backend) (Document, error) {
	var doc Document
	if err := store.Load(ctx, b, store.KeyMemory, store.Schema(store.KeyMemory), &doc); err != nil {
		return Document{}, err
	}
	if doc.History == nil {
		doc.History = []Entry{}
	}
	return doc, nil
}

// Close stops the writer goroutine. The backend is owned by the caller.
func (l *Log) Close() {
	l.queue.Close()
}

// Append records an exchange, evicts the oldest entries beyond the window,
// flushes, and returns the stored entry with the resulting history length.
// On a failed flush the stored history is left unchanged.
func (l *Log) Append(ctx context.Context, user, assistant string, topics []string, importance int) (Entry, int, error) {
	entry := Entry{
		ID:         uuid.NewString(),
		Timestamp:  l.now().UTC().Format(time.RFC3339Nano),
		User:       user,
		Assistant:  assistant,
		Topics:     slices.Clone(topics),
		Importance: importance,
	}
	if entry.Topics == nil {
		entry.Topics = []string{}
	}

	var length int
	err := l.queue.Do(ctx, func() error {
		next, err := load(ctx, l.backend)
		if err != nil {
			return err
		}
		next.History = append(next.History, entry)

		limit := next.MaxEntries
		if limit <= 0 {
			limit = DefaultMaxEntries
		}
		if excess := len(next.History) - limit; excess > 0 {
			next.History = next.History[excess:]
			l.logger.Debug("memory: evicted oldest entries", "evicted", excess, "max_entries", limit)
		}

		if err := store.Save(ctx, l.backend, store.KeyMemory, next); err != nil {
			return err
		}
		length = len(next.History)
		return nil
	})
	if err != nil {
		return Entry{}, 0, fmt.Errorf("memory: append: %w", err)
	}
	return entry, length, nil
}

// History returns the stored entries, oldest first.
func (l *Log) History(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := l.queue.Do(ctx, func() error {
		doc, err := load(ctx, l.backend)
		out = doc.History
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("memory: history: %w", err)
	}
	return out, nil
}

// Len returns the number of stored entries.
func (l *Log) Len(ctx context.Context) (int, error) {
	var n int
	err := l.queue.Do(ctx, func() error {
		doc, err := load(ctx, l.backend)
		n = len(doc.History)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("memory: len: %w", err)
	}
	return n, nil
}

// MaxEntries returns the effective window size.
func (l *Log) MaxEntries(ctx context.Context) (int, error) {
	var n int
	err := l.queue.Do(ctx, func() error {
		doc, err := load(ctx, l.backend)
		n = doc.MaxEntries
		if n <= 0 {
			n = DefaultMaxEntries
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("memory: max entries: %w", err)
	}
	return n, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
