package modules

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bdobrica/Kioku/common/spec/capability"
)

const descriptorExt = ".yaml"

// Index holds the descriptors currently present in a modules directory.
// Invalid files are skipped with a warning.
type Index struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	byName   map[string]*capability.Descriptor
	onReload func(n int)
}

// NewIndex returns an empty index over dir. Call Reload to populate it.
func NewIndex(dir string, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{dir: dir, logger: logger, byName: map[string]*capability.Descriptor{}}
}

// Dir returns the watched directory.
func (x *Index) Dir() string { return x.dir }

// OnReload registers fn to be called with the descriptor count after every
// successful reload.
func (x *Index) OnReload(fn func(n int)) {
	x.mu.Lock()
	x.onReload = fn
	x.mu.Unlock()
}

// Reload rescans the directory and swaps the index contents. A missing
// directory yields an empty index.
func (x *Index) Reload() (int, error) {
	entries, err := os.ReadDir(x.dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("modules: reload %s: %w", x.dir, err)
	}

	next := make(map[string]*capability.Descriptor, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), descriptorExt) {
			continue
		}
		path := filepath.Join(x.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			x.logger.Warn("modules: unreadable descriptor", "path", path, "err", err)
			continue
		}
		d, err := capability.Parse(data)
		if err != nil {
			x.logger.Warn("modules: invalid descriptor", "path", path, "err", err)
			continue
		}
		if _, dup := next[d.Name]; dup {
			x.logger.Warn("modules: duplicate descriptor name", "name", d.Name, "path", path)
			continue
		}
		next[d.Name] = d
	}

	x.mu.Lock()
	x.byName = next
	hook := x.onReload
	x.mu.Unlock()

	if hook != nil {
		hook(len(next))
	}
	x.logger.Debug("modules: index reloaded", "dir", x.dir, "count", len(next))
	return len(next), nil
}

// List returns the descriptors sorted by name.
func (x *Index) List() []capability.Descriptor {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]capability.Descriptor, 0, len(x.byName))
	for _, d := range x.byName {
		out = append(out, *d)
	}
	slices.SortFunc(out, func(a, b capability.Descriptor) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Lookup returns the enabled descriptor serving topic.
func (x *Index) Lookup(topic string) (capability.Descriptor, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, ok := x.byName[ModuleName(topic)]
	if !ok || !d.Enabled {
		return capability.Descriptor{}, false
	}
	return *d, true
}

// Len returns the number of indexed descriptors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byName)
}
