package source

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// File is a text source backed by a file on disk. A missing file reads as
// empty text.
type File struct {
	Path string
}

func (f File) Read(_ context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", errors.Errorf("failed to read source file %s: %w", f.Path, err)
	}
	return string(data), nil
}

func (f File) Write(_ context.Context, text string) error {
	if err := os.WriteFile(f.Path, []byte(text), 0o644); err != nil {
		return errors.Errorf("failed to write source file %s: %w", f.Path, err)
	}
	return nil
}

// Notify watches the file's directory, so editors that save by renaming a
// new file into place are still seen.
func (f File) Notify(ctx context.Context) (<-chan struct{}, error) {
	abs, err := filepath.Abs(f.Path)
	if err != nil {
		return nil, errors.Errorf("resolving %s: %w", f.Path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Errorf("creating file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, errors.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	logger := zerolog.Ctx(ctx)
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Str("path", f.Path).Msg("source file watcher error")
			}
		}
	}()
	return ch, nil
}
