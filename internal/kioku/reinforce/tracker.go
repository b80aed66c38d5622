// Package reinforce counts how often each topic has been discussed.
//
// Strengths only grow: every Reinforce adds one and flushes the whole table.
// The same document carries the repetition threshold used by module
// expansion, under the reserved "_neuroplasticity" key.
package reinforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdobrica/Kioku/internal/kioku/store"
	"github.com/bdobrica/Kioku/internal/kioku/writer"
)

// DefaultRepetitionThreshold applies when the document has no settings
// block and the tracker was not configured otherwise.
const DefaultRepetitionThreshold = 3

var (
	// ErrReservedTopic is returned when reinforcing ConfigKey.
	ErrReservedTopic = errors.New("reinforce: topic name is reserved")

	// ErrEmptyTopic is returned when reinforcing a blank topic.
	ErrEmptyTopic = errors.New("reinforce: empty topic")
)

// TrackerConfig holds fallbacks for settings missing from the document.
type TrackerConfig struct {
	// RepetitionThreshold is used when the document has no settings block.
	// Default: DefaultRepetitionThreshold.
	RepetitionThreshold int
}

// Tracker owns the reinforcement document. Calls are serialized through its
// writer queue, so concurrent reinforcement never loses an increment, and
// each call reads the document from the backend.
type Tracker struct {
	backend store.Backend
	queue   *writer.Queue
	config  TrackerConfig
	logger  *slog.Logger
}

// Init writes a reinforcement document carrying the settings block when
// none exists.
func Init(ctx context.Context, b store.Backend, settings Settings) error {
	var t Table
	err := store.Load(ctx, b, store.KeyReinforcement, store.Schema(store.KeyReinforcement), &t)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return store.Save(ctx, b, store.KeyReinforcement, Table{Strengths: map[string]int{}, Settings: &settings})
}

// Open loads the reinforcement document, starting from an empty table when
// it does not exist yet. A corrupt document is an error.
func Open(ctx context.Context, b store.Backend, cfg TrackerConfig, logger *slog.Logger) (*Tracker, error) {
	if cfg.RepetitionThreshold <= 0 {
		cfg.RepetitionThreshold = DefaultRepetitionThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}

	err := store.Load(ctx, b, store.KeyReinforcement, store.Schema(store.KeyReinforcement), &Table{})
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Info("reinforce: no reinforcement document, starting empty")
	case err != nil:
		return nil, fmt.Errorf("reinforce: open: %w", err)
	}

	return &Tracker{
		backend: b,
		queue:   writer.Start(store.KeyReinforcement),
		config:  cfg,
		logger:  logger,
	}, nil
}

// load reads the table; a missing document is an empty table.
func (t *Tracker) load(ctx context.Context) (Table, error) {
	var table Table
	err := store.Load(ctx, t.backend, store.KeyReinforcement, store.Schema(store.KeyReinforcement), &table)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Table{}, err
	}
	if table.Strengths == nil {
		table.Strengths = map[string]int{}
	}
	return table, nil
}

// Close stops the writer goroutine.
func (t *Tracker) Close() {
	t.queue.Close()
}

// Reinforce adds one to topic's strength, flushes the table, and returns
// the new strength.
func (t *Tracker) Reinforce(ctx context.Context, topic string) (int, error) {
	if strings.TrimSpace(topic) == "" {
		return 0, ErrEmptyTopic
	}
	if topic == ConfigKey {
		return 0, fmt.Errorf("%w: %q", ErrReservedTopic, topic)
	}

	var strength int
	err := t.queue.Do(ctx, func() error {
		next, err := t.load(ctx)
		if err != nil {
			return err
		}
		next.Strengths[topic]++
		if err := store.Save(ctx, t.backend, store.KeyReinforcement, next); err != nil {
			return err
		}
		strength = next.Strengths[topic]
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reinforce: %s: %w", topic, err)
	}
	return strength, nil
}

// Strength returns topic's strength; unknown topics are 0.
func (t *Tracker) Strength(ctx context.Context, topic string) (int, error) {
	var n int
	err := t.queue.Do(ctx, func() error {
		table, err := t.load(ctx)
		n = table.Strengths[topic]
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reinforce: strength %s: %w", topic, err)
	}
	return n, nil
}

// RepetitionThreshold returns the document's threshold, falling back to
// the tracker configuration.
func (t *Tracker) RepetitionThreshold(ctx context.Context) (int, error) {
	var n int
	err := t.queue.Do(ctx, func() error {
		table, err := t.load(ctx)
		n = t.config.RepetitionThreshold
		if s := table.Settings; s != nil && s.RepetitionThreshold > 0 {
			n = s.RepetitionThreshold
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reinforce: repetition threshold: %w", err)
	}
	return n, nil
}

// Snapshot returns a copy of all strengths.
func (t *Tracker) Snapshot(ctx context.Context) (map[string]int, error) {
	var out map[string]int
	err := t.queue.Do(ctx, func() error {
		table, err := t.load(ctx)
		out = table.Strengths
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reinforce: snapshot: %w", err)
	}
	return out, nil
}
