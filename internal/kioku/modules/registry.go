// Package modules manages capability modules: the append-only registry of
// created and updated modules, the YAML descriptors generated for strongly
// reinforced topics, and an in-memory index of those descriptors that
// follows changes on disk.
package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Kioku/internal/kioku/store"
	"github.com/bdobrica/Kioku/internal/kioku/writer"
)

// Status values of a registry record.
const (
	StatusCreated = "created"
	StatusUpdated = "updated"
)

// Record is one registry entry.
type Record struct {
	ID        string `json:"id"`
	Module    string `json:"module"`
	Topic     string `json:"topic,omitempty"`
	Source    string `json:"source,omitempty"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type registryDocument struct {
	Records []Record `json:"records"`
}

// Registry is the append-only module log. Every call reads the document
// from the backend.
type Registry struct {
	backend store.Backend
	queue   *writer.Queue
	logger  *slog.Logger
	now     func() time.Time
}

// OpenRegistry loads the registry, starting empty when the document does
// not exist.
func OpenRegistry(ctx context.Context, b store.Backend, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := loadRegistry(ctx, b); err != nil {
		return nil, fmt.Errorf("modules: open registry: %w", err)
	}
	return &Registry{
		backend: b,
		queue:   writer.Start(store.KeyModules),
		logger:  logger,
		now:     time.Now,
	}, nil
}

func loadRegistry(ctx context.Context, b store.Backend) (registryDocument, error) {
	var doc registryDocument
	err := store.Load(ctx, b, store.KeyModules, store.Schema(store.KeyModules), &doc)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return registryDocument{}, err
	}
	if doc.Records == nil {
		doc.Records = []Record{}
	}
	return doc, nil
}

// Close stops the writer goroutine.
func (r *Registry) Close() {
	r.queue.Close()
}

// Append assigns an id and timestamp when missing, appends rec and
// flushes.
func (r *Registry) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.Module == "" {
		return Record{}, fmt.Errorf("modules: append: module name must not be empty")
	}
	if rec.Status != StatusCreated && rec.Status != StatusUpdated {
		return Record{}, fmt.Errorf("modules: append: unknown status %q", rec.Status)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = r.now().UTC().Format(time.RFC3339)
	}

	err := r.queue.Do(ctx, func() error {
		next, err := loadRegistry(ctx, r.backend)
		if err != nil {
			return err
		}
		next.Records = append(next.Records, rec)
		return store.Save(ctx, r.backend, store.KeyModules, next)
	})
	if err != nil {
		return Record{}, fmt.Errorf("modules: append: %w", err)
	}
	r.logger.Info("modules: registry record", "module", rec.Module, "status", rec.Status)
	return rec, nil
}

// Records returns a copy of all records, oldest first.
func (r *Registry) Records(ctx context.Context) ([]Record, error) {
	var out []Record
	err := r.queue.Do(ctx, func() error {
		doc, err := loadRegistry(ctx, r.backend)
		out = doc.Records
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("modules: records: %w", err)
	}
	return out, nil
}
