package formatter

import (
	"bytes"
	"context"
	iofs "io/fs"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/sokinpui/snippy.go/internal/fs"
)

// Directories never descended into when a directory is given.
var skipDirs = []string{".git", ".snippy", "node_modules"}

// Collect resolves patterns relative to the workspace into files. A pattern
// may name a file, a directory (walked recursively) or a doublestar glob.
// Files matching an ignore pattern and binary files are left out. The result
// keeps the first-seen order and holds each path once.
func Collect(ctx context.Context, ws *fs.Workspace, patterns, ignore []string) ([]File, error) {
	logger := zerolog.Ctx(ctx)
	fsys := ws.FS()

	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if seen[p] || ignored(ctx, p, ignore) {
			return
		}
		seen[p] = true
		paths = append(paths, p)
	}

	for _, pattern := range patterns {
		clean := fs.NormalizePath(pattern)
		if clean == "" {
			clean = "."
		}
		if _, err := ws.Resolve(clean); err != nil && clean != "." {
			return nil, err
		}

		info, err := iofs.Stat(fsys, clean)
		switch {
		case err == nil && info.IsDir():
			if err := walkDir(fsys, clean, add); err != nil {
				return nil, err
			}
		case err == nil:
			add(clean)
		default:
			matches, err := doublestar.Glob(fsys, clean, doublestar.WithFilesOnly())
			if err != nil {
				return nil, errors.Errorf("bad pattern %q: %w", pattern, err)
			}
			if len(matches) == 0 {
				logger.Warn().Str("pattern", pattern).Msg("pattern matched no files")
			}
			for _, m := range matches {
				add(m)
			}
		}
	}

	files := make([]File, 0, len(paths))
	for _, p := range paths {
		data, err := iofs.ReadFile(fsys, p)
		if err != nil {
			return nil, errors.Errorf("reading %s: %w", p, err)
		}
		if bytes.IndexByte(data, 0) >= 0 {
			logger.Warn().Str("file", p).Msg("skipping binary file")
			continue
		}
		files = append(files, File{Path: p, Content: string(data)})
	}
	return files, nil
}

func walkDir(fsys iofs.FS, root string, add func(string)) error {
	err := iofs.WalkDir(fsys, root, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && slices.Contains(skipDirs, d.Name()) {
				return iofs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			add(p)
		}
		return nil
	})
	if err != nil {
		return errors.Errorf("walking %s: %w", root, err)
	}
	return nil
}

func ignored(ctx context.Context, p string, patterns []string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, p)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Str("pattern", pattern).Str("path", p).Err(err).Msg("error matching pattern")
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
