// Package updater appends or inserts code snippets in files inside a
// workspace root, keeping a .bak copy of the previous contents and recording every change
// in the module registry. Failures are reported through Result, never as
// errors, so callers can log them and carry on.
package updater

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bdobrica/Kioku/internal/kioku/modules"
)

// Header precedes every appended snippet.
const Header = "# === Kioku update ==="

// BackupSuffix is appended to the target name for the backup copy.
const BackupSuffix = ".bak"

// Result reports the outcome of one appension.
type Result struct {
	Applied bool
	Path    string
	Backup  string
	Message string
}

// Updater appends to files under a single root directory.
type Updater struct {
	root     string
	recorder modules.Recorder
	logger   *slog.Logger
}

// New returns an Updater confined to root. recorder may be nil.
func New(root string, recorder modules.Recorder, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{root: root, recorder: recorder, logger: logger}
}

// Append copies the current file to <path>.bak when it exists, then
// appends the header, the snippet and a trailing newline. Paths resolving
// outside the root are refused.
func (u *Updater) Append(ctx context.Context, path, snippet string) Result {
	rel, err := u.resolve(path)
	if err != nil {
		return u.fail(path, err)
	}
	if strings.TrimSpace(snippet) == "" {
		return u.fail(path, errors.New("empty snippet"))
	}

	root, err := os.OpenRoot(u.root)
	if err != nil {
		return u.fail(path, err)
	}
	defer root.Close()

	res := Result{Path: filepath.Join(u.root, rel)}

	existing, err := root.ReadFile(rel)
	switch {
	case err == nil:
		if err := root.WriteFile(rel+BackupSuffix, existing, 0o644); err != nil {
			return u.fail(path, fmt.Errorf("backup: %w", err))
		}
		res.Backup = res.Path + BackupSuffix
	case errors.Is(err, fs.ErrNotExist):
		if dir := filepath.Dir(rel); dir != "." {
			if err := root.MkdirAll(dir, 0o755); err != nil {
				return u.fail(path, err)
			}
		}
	default:
		return u.fail(path, err)
	}

	var b strings.Builder
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(Header)
	b.WriteString("\n")
	b.WriteString(snippet)
	if !strings.HasSuffix(snippet, "\n") {
		b.WriteString("\n")
	}

	f, err := root.OpenFile(rel, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return u.fail(path, err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return u.fail(path, err)
	}
	if err := f.Close(); err != nil {
		return u.fail(path, err)
	}

	u.logger.Info("updater: appended snippet", "path", res.Path, "backup", res.Backup, "bytes", len(snippet))
	return u.record(ctx, rel, res)
}

// Insert places snippet on a new line after every occurrence of marker in
// an existing file, after copying it to <path>.bak. A missing file or
// marker changes nothing.
func (u *Updater) Insert(ctx context.Context, path, marker, snippet string) Result {
	rel, err := u.resolve(path)
	if err != nil {
		return u.fail(path, err)
	}
	if marker == "" {
		return u.fail(path, errors.New("empty marker"))
	}
	if strings.TrimSpace(snippet) == "" {
		return u.fail(path, errors.New("empty snippet"))
	}

	root, err := os.OpenRoot(u.root)
	if err != nil {
		return u.fail(path, err)
	}
	defer root.Close()

	existing, err := root.ReadFile(rel)
	if err != nil {
		return u.fail(path, err)
	}
	content := string(existing)
	n := strings.Count(content, marker)
	if n == 0 {
		return u.fail(path, fmt.Errorf("marker %q not found", marker))
	}

	res := Result{Path: filepath.Join(u.root, rel)}
	if err := root.WriteFile(rel+BackupSuffix, existing, 0o644); err != nil {
		return u.fail(path, fmt.Errorf("backup: %w", err))
	}
	res.Backup = res.Path + BackupSuffix

	updated := strings.ReplaceAll(content, marker, marker+"\n"+snippet)
	if err := root.WriteFile(rel, []byte(updated), 0o644); err != nil {
		return u.fail(path, err)
	}

	u.logger.Info("updater: inserted snippet", "path", res.Path, "marker", marker, "occurrences", n)
	return u.record(ctx, rel, res)
}

// record marks res applied and appends an updated registry record. The
// file has already changed, so a failed record only shows in the message.
func (u *Updater) record(ctx context.Context, rel string, res Result) Result {
	res.Applied = true
	res.Message = "updated " + filepath.ToSlash(rel)
	if u.recorder == nil {
		return res
	}
	if _, err := u.recorder.Append(ctx, modules.Record{
		Module: filepath.ToSlash(rel),
		Source: res.Path,
		Status: modules.StatusUpdated,
	}); err != nil {
		u.logger.Warn("updater: registry record failed", "path", res.Path, "err", err)
		res.Message = fmt.Sprintf("updated %s (registry record failed: %v)", filepath.ToSlash(rel), err)
	}
	return res
}

// resolve returns path relative to the root, refusing anything that
// escapes it.
func (u *Updater) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("empty path")
	}
	rel := path
	if filepath.IsAbs(path) {
		absRoot, err := filepath.Abs(u.root)
		if err != nil {
			return "", err
		}
		rel, err = filepath.Rel(absRoot, path)
		if err != nil {
			return "", err
		}
	}
	rel = filepath.Clean(rel)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q is outside the workspace", path)
	}
	return rel, nil
}

func (u *Updater) fail(path string, err error) Result {
	u.logger.Warn("updater: update refused", "path", path, "err", err)
	return Result{Path: path, Message: fmt.Sprintf("update of %s failed: %v", path, err)}
}
