package nvim

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/neovim/go-client/nvim"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/sokinpui/snippy.go/internal/applier"
	"github.com/sokinpui/snippy.go/internal/fs"
	"github.com/sokinpui/snippy.go/model"
)

// Address returns the socket of the Neovim instance this process runs
// under, or the empty string.
func Address() string {
	if addr := os.Getenv("NVIM"); addr != "" {
		return addr
	}
	return os.Getenv("NVIM_LISTEN_ADDRESS")
}

// Reloader asks a running Neovim to reload buffers of files changed on disk.
type Reloader struct {
	addr string
	ws   *fs.Workspace
}

// New creates a Reloader talking to addr. Paths are resolved against ws.
func New(addr string, ws *fs.Workspace) *Reloader {
	return &Reloader{addr: addr, ws: ws}
}

// Reload runs checktime for every path so unmodified buffers pick up the new
// content. Buffers that are not open are left alone.
func (r *Reloader) Reload(ctx context.Context, paths []string) error {
	if r.addr == "" || len(paths) == 0 {
		return nil
	}

	v, err := nvim.Dial(r.addr, nvim.DialContext(ctx))
	if err != nil {
		return errors.Errorf("connecting to nvim at %s: %w", r.addr, err)
	}
	defer v.Close()

	b := v.NewBatch()
	for _, p := range paths {
		b.Command(fmt.Sprintf("silent! checktime %s", escape(r.ws.Abs(p))))
	}
	if err := b.Execute(); err != nil {
		return errors.Errorf("reloading buffers: %w", err)
	}
	return nil
}

// OnBatch reloads the files a batch changed. Failures are logged only.
func (r *Reloader) OnBatch(ctx context.Context, _ model.Summary, changes []*applier.Change) {
	paths := make([]string, 0, len(changes))
	seen := make(map[string]bool)
	for _, c := range changes {
		if !seen[c.Filename] {
			seen[c.Filename] = true
			paths = append(paths, c.Filename)
		}
	}
	if err := r.Reload(ctx, paths); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("could not reload nvim buffers")
	}
}

// escape quotes a file name for an Ex command argument.
func escape(p string) string {
	var b strings.Builder
	for _, r := range p {
		switch r {
		case ' ', '\\', '%', '#', '|', '"':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
