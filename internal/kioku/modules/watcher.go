package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches bursts of descriptor writes into one reload.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads an Index when descriptor files change.
type Watcher struct {
	index    *Index
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher returns a watcher for idx. A non-positive debounce uses
// DefaultDebounce.
func NewWatcher(idx *Index, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{index: idx, debounce: debounce, logger: logger}
}

// Run watches the index directory until ctx is cancelled. The directory is
// created if needed and the index is reloaded once after the watch is in
// place, so files written before Run are not missed.
func (w *Watcher) Run(ctx context.Context) error {
	dir := w.index.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("modules: watch %s: %w", dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("modules: watch %s: %w", dir, err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("modules: watch %s: %w", dir, err)
	}
	if _, err := w.index.Reload(); err != nil {
		w.logger.Warn("modules: initial reload failed", "err", err)
	}
	w.logger.Info("modules: watching descriptors", "dir", dir)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			w.logger.Debug("modules: descriptor event", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("modules: watcher error", "err", err)

		case <-timer.C:
			if _, err := w.index.Reload(); err != nil {
				w.logger.Warn("modules: reload failed", "err", err)
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !strings.HasSuffix(filepath.Base(ev.Name), descriptorExt) {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
