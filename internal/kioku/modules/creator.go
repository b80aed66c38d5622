package modules

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/bdobrica/Kioku/common/spec/capability"
)

// Recorder receives registry records.
type Recorder interface {
	Append(ctx context.Context, rec Record) (Record, error)
}

// Creator writes capability descriptors into a modules directory.
type Creator struct {
	dir      string
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewCreator returns a Creator writing into dir.
func NewCreator(dir string, recorder Recorder, logger *slog.Logger) *Creator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Creator{dir: dir, recorder: recorder, logger: logger, now: time.Now}
}

// ModuleName maps a topic onto its module name. Characters other than
// letters, digits, '-' and '_' become '_'.
func ModuleName(topic string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, topic)
	return "module_" + clean
}

// DescriptorPath returns where the descriptor for topic lives.
func (c *Creator) DescriptorPath(topic string) string {
	return filepath.Join(c.dir, ModuleName(topic)+descriptorExt)
}

// Create writes the descriptor for topic and appends a created record. It
// reports false without touching anything when the descriptor already
// exists. When the record cannot be written the descriptor is removed
// again, so a later call retries both.
func (c *Creator) Create(ctx context.Context, topic string) (bool, error) {
	name := ModuleName(topic)
	desc := &capability.Descriptor{
		APIVersion:  capability.SpecVersion,
		Name:        name,
		Topic:       topic,
		Handler:     capability.HandlerAnalyze,
		Enabled:     true,
		Description: fmt.Sprintf("Handles requests about %q.", topic),
		CreatedAt:   c.now().UTC().Truncate(time.Second),
	}
	data, err := capability.Marshal(desc)
	if err != nil {
		return false, fmt.Errorf("modules: create %s: %w", name, err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return false, fmt.Errorf("modules: create %s: %w", name, err)
	}
	path := c.DescriptorPath(topic)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		c.warnOnCollision(path, topic)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("modules: create %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return false, fmt.Errorf("modules: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return false, fmt.Errorf("modules: write %s: %w", name, err)
	}

	if _, err := c.recorder.Append(ctx, Record{
		Module: name,
		Topic:  topic,
		Source: path,
		Status: StatusCreated,
	}); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			c.logger.Warn("modules: removing unrecorded descriptor", "path", path, "err", rmErr)
		}
		return false, fmt.Errorf("modules: record %s: %w", name, err)
	}
	c.logger.Info("modules: created capability module", "module", name, "topic", topic, "path", path)
	return true, nil
}

// warnOnCollision logs when the descriptor at path was generated for a
// different topic that maps onto the same module name.
func (c *Creator) warnOnCollision(path, topic string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	d, err := capability.Parse(data)
	if err != nil || d.Topic == topic {
		return
	}
	c.logger.Warn("modules: module name already serves another topic",
		"module", d.Name, "topic", topic, "existing_topic", d.Topic, "path", path)
}
