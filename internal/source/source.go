package source

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Reader yields the current text of a source.
type Reader interface {
	Read(ctx context.Context) (string, error)
}

// Writer replaces the text of a source.
type Writer interface {
	Write(ctx context.Context, text string) error
}

// Notifier is implemented by sources that can signal a change before the
// next polling tick. The returned channel is closed when ctx is done.
type Notifier interface {
	Notify(ctx context.Context) (<-chan struct{}, error)
}

// Provider determines and retrieves the content for a one-shot apply.
type Provider struct {
	stdin     io.Reader
	isPiped   func() bool
	clipboard Reader
}

// NewProvider creates a Provider reading stdin when it is piped and
// clipboard otherwise.
func NewProvider(clipboard Reader) *Provider {
	return &Provider{
		stdin:     os.Stdin,
		isPiped:   stdinIsPiped,
		clipboard: clipboard,
	}
}

func stdinIsPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// GetContent retrieves content from stdin (if piped) or the clipboard. Blank
// content is returned as the empty string.
func (p *Provider) GetContent(ctx context.Context) (string, error) {
	logger := zerolog.Ctx(ctx)

	var content string
	if p.isPiped() {
		logger.Debug().Msg("reading from stdin")
		data, err := io.ReadAll(p.stdin)
		if err != nil {
			return "", errors.Errorf("failed to read from stdin: %w", err)
		}
		content = string(data)
	} else {
		logger.Debug().Msg("reading from clipboard")
		var err error
		content, err = p.clipboard.Read(ctx)
		if err != nil {
			return "", err
		}
	}

	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	return content, nil
}

// Read implements Reader.
func (p *Provider) Read(ctx context.Context) (string, error) {
	return p.GetContent(ctx)
}
