package snippy

import (
	"context"

	"gitlab.com/tozd/go/errors"

	"github.com/sokinpui/snippy.go/internal/config"
)

// Config for using snippy as a library.
type Config struct {
	// Dir is the base directory; empty means the working directory.
	Dir string
	// Filter by extension. Use 'diff' to process only diff blocks (e.g., 'py', 'js', 'diff').
	Extensions []string
	// Record the batch so it can be undone.
	History bool
}

// Apply parses the given content string and applies the changes to files.
// It returns a summary of the operations in a map.
func Apply(ctx context.Context, content string, cfg Config) (map[string][]string, error) {
	appCfg := config.Default()
	if cfg.Dir != "" {
		appCfg.Dir = cfg.Dir
	}
	appCfg.Apply.Extensions = config.NormalizeExtensions(cfg.Extensions)
	appCfg.History = cfg.History
	appCfg.NvimReload = false

	app, err := New(appCfg)
	if err != nil {
		return nil, errors.Errorf("failed to initialize snippy app: %w", err)
	}
	defer app.Close()

	summary, _ := app.Apply(ctx, content)
	return map[string][]string{
		"Created":   summary.Created,
		"Modified":  summary.Modified,
		"Unchanged": summary.Unchanged,
		"Failed":    summary.Failed,
	}, nil
}
