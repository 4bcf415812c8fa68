package fs

import (
	"crypto/sha256"
	"encoding/hex"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// ErrOutsideRoot is returned for paths that would resolve outside the workspace.
var ErrOutsideRoot = errors.Base("path escapes base directory")

// NormalizePath converts a path found in pasted text to the canonical
// relative form: forward slashes, no leading "./", cleaned.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// Workspace confines file operations to a base directory.
type Workspace struct {
	fs   afero.Fs
	root string
}

// NewWorkspace creates a Workspace rooted at dir on the OS filesystem.
func NewWorkspace(dir string) (*Workspace, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Errorf("resolving base directory %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Errorf("base directory %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("base directory %q is not a directory", abs)
	}
	return &Workspace{fs: afero.NewBasePathFs(afero.NewOsFs(), abs), root: abs}, nil
}

// Root returns the absolute base directory.
func (w *Workspace) Root() string {
	return w.root
}

// FS exposes the workspace as a read-only io/fs filesystem rooted at Root.
func (w *Workspace) FS() iofs.FS {
	return afero.NewIOFS(w.fs)
}

// Abs returns the absolute OS path for a relative workspace path.
func (w *Workspace) Abs(name string) string {
	return filepath.Join(w.root, filepath.FromSlash(name))
}

// Resolve validates a relative path and returns it in OS form.
func (w *Workspace) Resolve(name string) (string, error) {
	clean := NormalizePath(name)
	if clean == "" || clean == "." {
		return "", errors.Errorf("empty path")
	}
	if path.IsAbs(clean) || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.WithDetails(ErrOutsideRoot, "path", name)
	}
	return filepath.FromSlash(clean), nil
}

// Exists reports whether name exists as a regular file.
func (w *Workspace) Exists(name string) (bool, error) {
	p, err := w.Resolve(name)
	if err != nil {
		return false, err
	}
	info, err := w.fs.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.Errorf("stat %s: %w", name, err)
	}
	return !info.IsDir(), nil
}

// ReadFile reads the file at name. A missing file yields an error matching
// errors.Is(err, os.ErrNotExist).
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	p, err := w.Resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(w.fs, p)
	if err != nil {
		return nil, errors.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// WriteFileAtomic writes content to name, creating parent directories. The
// content is written to a temporary file in the same directory and renamed
// into place so a failed write never leaves a truncated target behind.
func (w *Workspace) WriteFileAtomic(name string, content []byte) error {
	p, err := w.Resolve(name)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Errorf("creating parent directories for %s: %w", name, err)
	}

	mode := os.FileMode(0o644)
	if info, err := w.fs.Stat(p); err == nil {
		if info.IsDir() {
			return errors.Errorf("%s is a directory", name)
		}
		mode = info.Mode().Perm()
	}

	tmp, err := afero.TempFile(w.fs, dir, "."+filepath.Base(p)+".snippy-*")
	if err != nil {
		return errors.Errorf("creating temp file for %s: %w", name, err)
	}
	tmpName := filepath.Join(dir, filepath.Base(tmp.Name()))

	cleanup := func() {
		_ = tmp.Close()
		_ = w.fs.Remove(tmpName)
	}

	if _, err := tmp.Write(content); err != nil {
		cleanup()
		return errors.Errorf("writing temp file for %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.Errorf("syncing temp file for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = w.fs.Remove(tmpName)
		return errors.Errorf("closing temp file for %s: %w", name, err)
	}
	if err := w.fs.Chmod(tmpName, mode); err != nil {
		_ = w.fs.Remove(tmpName)
		return errors.Errorf("setting mode on %s: %w", name, err)
	}
	if err := w.fs.Rename(tmpName, p); err != nil {
		_ = w.fs.Remove(tmpName)
		return errors.Errorf("renaming temp file onto %s: %w", name, err)
	}
	return nil
}

// Remove deletes the file at name and prunes parent directories left empty,
// stopping at the workspace root.
func (w *Workspace) Remove(name string) error {
	p, err := w.Resolve(name)
	if err != nil {
		return err
	}
	if err := w.fs.Remove(p); err != nil {
		return errors.Errorf("removing %s: %w", name, err)
	}
	for dir := filepath.Dir(p); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		empty, err := afero.IsEmpty(w.fs, dir)
		if err != nil || !empty {
			break
		}
		if err := w.fs.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// HashFile returns the hex SHA-256 of the file at name.
func (w *Workspace) HashFile(name string) (string, error) {
	data, err := w.ReadFile(name)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
