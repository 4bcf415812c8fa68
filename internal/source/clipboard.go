package source

import (
	"context"

	"github.com/atotto/clipboard"
	"gitlab.com/tozd/go/errors"
)

// Clipboard is the system clipboard.
type Clipboard struct{}

func (Clipboard) Read(_ context.Context) (string, error) {
	content, err := clipboard.ReadAll()
	if err != nil {
		return "", errors.Errorf("failed to read from clipboard: %w", err)
	}
	return content, nil
}

func (Clipboard) Write(_ context.Context, text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return errors.Errorf("failed to write to clipboard: %w", err)
	}
	return nil
}
