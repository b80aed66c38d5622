package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bdobrica/Kioku/internal/kioku/store"
	"github.com/bdobrica/Kioku/internal/kioku/writer"
)

// CompactorConfig controls the long-memory digest.
type CompactorConfig struct {
	// Interval between compactions in Run. Default: 1 hour.
	Interval time.Duration

	// MinLength is the rune count a text must exceed to be kept.
	// Default: 30.
	MinLength int

	// OnRun, when set, is called after every compaction started by Run.
	OnRun func(kept int, err error)
}

// DefaultCompactorConfig returns the documented defaults.
func DefaultCompactorConfig() CompactorConfig {
	return CompactorConfig{
		Interval:  time.Hour,
		MinLength: 30,
	}
}

// LongMemory is the persisted digest.
type LongMemory struct {
	Memories    []string `json:"memories"`
	CompactedAt string   `json:"compacted_at,omitempty"`
}

// Compactor distils the history into the long-memory document. It reads the
// history through the Log's queue and writes through its own, so it never
// races the interaction pipeline.
type Compactor struct {
	log     *Log
	backend store.Backend
	queue   *writer.Queue
	config  CompactorConfig
	logger  *slog.Logger
	now     func() time.Time
	pick    func(n int) int
}

// NewCompactor creates a Compactor. Zero config fields take defaults.
func NewCompactor(log *Log, b store.Backend, cfg CompactorConfig, logger *slog.Logger) *Compactor {
	def := DefaultCompactorConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = def.MinLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{
		log:     log,
		backend: b,
		queue:   writer.Start(store.KeyLongMemory),
		config:  cfg,
		logger:  logger,
		now:     time.Now,
		pick:    rand.IntN,
	}
}

// Close stops the compactor's writer goroutine.
func (c *Compactor) Close() {
	c.queue.Close()
}

// Compact rebuilds the digest from the current history and returns how many
// memories it holds. When no text qualifies the previous digest is kept and
// 0 is returned.
func (c *Compactor) Compact(ctx context.Context) (int, error) {
	history, err := c.log.History(ctx)
	if err != nil {
		return 0, fmt.Errorf("memory: compact: %w", err)
	}

	memories := distil(history, c.config.MinLength)
	if len(memories) == 0 {
		return 0, nil
	}

	err = c.queue.Do(ctx, func() error {
		return store.Save(ctx, c.backend, store.KeyLongMemory, LongMemory{
			Memories:    memories,
			CompactedAt: c.now().UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return 0, fmt.Errorf("memory: compact: %w", err)
	}
	c.logger.Info("memory: compacted long memory", "memories", len(memories), "history", len(history))
	return len(memories), nil
}

// LongMemory returns the stored digest, or an empty one when none exists.
func (c *Compactor) LongMemory(ctx context.Context) (LongMemory, error) {
	var lm LongMemory
	err := c.queue.Do(ctx, func() error {
		err := store.Load(ctx, c.backend, store.KeyLongMemory, store.Schema(store.KeyLongMemory), &lm)
		if isNotFound(err) {
			lm = LongMemory{Memories: []string{}}
			return nil
		}
		return err
	})
	if err != nil {
		return LongMemory{}, fmt.Errorf("memory: long memory: %w", err)
	}
	return lm, nil
}

// Recall returns one memory from the digest, chosen at random. ok is false
// when the digest is empty or was never written.
func (c *Compactor) Recall(ctx context.Context) (text string, ok bool, err error) {
	lm, err := c.LongMemory(ctx)
	if err != nil {
		return "", false, err
	}
	if len(lm.Memories) == 0 {
		return "", false, nil
	}
	return lm.Memories[c.pick(len(lm.Memories))], true, nil
}

// Run compacts once per interval until ctx is done. Failures are logged and
// the loop continues.
func (c *Compactor) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	c.logger.Info("memory: compaction loop started", "interval", c.config.Interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			kept, err := c.Compact(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				c.logger.Warn("memory: compaction failed", "err", err)
			}
			if c.config.OnRun != nil {
				c.config.OnRun(kept, err)
			}
		}
	}
}

// distil returns the distinct user and assistant texts longer than
// minLength runes, in first-seen order.
func distil(history []Entry, minLength int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range history {
		for _, text := range []string{e.User, e.Assistant} {
			text = strings.TrimSpace(text)
			if utf8.RuneCountInString(text) <= minLength {
				continue
			}
			if _, dup := seen[text]; dup {
				continue
			}
			seen[text] = struct{}{}
			out = append(out, text)
		}
	}
	return out
}
