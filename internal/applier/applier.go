package applier

import (
	"bytes"
	"context"
	"os"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/sokinpui/snippy.go/internal/fs"
	"github.com/sokinpui/snippy.go/internal/patcher"
	"github.com/sokinpui/snippy.go/model"
)

// Change is the computed effect of one block on its target file.
type Change struct {
	Filename string
	Type     model.BlockType
	Action   model.Action
	// Existed reports whether the target was present before the change.
	Existed bool
	Before  []byte
	After   []byte
}

// UnifiedDiff renders the change as a unified diff for previews.
func (c *Change) UnifiedDiff() (string, error) {
	from := "a/" + c.Filename
	if !c.Existed {
		from = patcher.DevNull
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(c.Before)),
		B:        difflib.SplitLines(string(c.After)),
		FromFile: from,
		ToFile:   "b/" + c.Filename,
		Context:  3,
	})
}

// Applier materializes parsed blocks inside a workspace.
type Applier struct {
	ws      *fs.Workspace
	patcher *patcher.Patcher
}

// New creates an Applier writing into ws. window is the hunk search window.
func New(ws *fs.Workspace, window int) *Applier {
	return &Applier{ws: ws, patcher: patcher.New(window)}
}

// Workspace returns the workspace the applier writes into.
func (a *Applier) Workspace() *fs.Workspace {
	return a.ws
}

// Apply computes and writes the change for block. Nothing is written unless
// every hunk of a diff block applies.
func (a *Applier) Apply(ctx context.Context, block model.ParsedBlock) (*Change, error) {
	change, err := a.Prepare(ctx, block)
	if err != nil {
		return nil, err
	}
	if err := a.Commit(ctx, change); err != nil {
		return nil, err
	}
	return change, nil
}

// Prepare reads the current target and computes the post-image without
// touching the filesystem.
func (a *Applier) Prepare(ctx context.Context, block model.ParsedBlock) (*Change, error) {
	logger := zerolog.Ctx(ctx)

	if _, err := a.ws.Resolve(block.Filename); err != nil {
		return nil, newError(model.KindIO, block.Filename, err)
	}

	before, err := a.ws.ReadFile(block.Filename)
	existed := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, newError(model.KindIO, block.Filename, err)
	}

	change := &Change{
		Filename: block.Filename,
		Type:     block.Type,
		Existed:  existed,
		Before:   before,
	}

	switch block.Type {
	case model.FullContent:
		change.After = []byte(block.Content)
	case model.UnifiedDiff:
		after, err := a.patch(block, before, existed)
		if err != nil {
			return nil, err
		}
		change.After = after
	default:
		return nil, newError(model.KindParse, block.Filename, errors.Errorf("unknown block type %d", block.Type))
	}

	switch {
	case !existed:
		change.Action = model.ActionCreated
	case bytes.Equal(before, change.After):
		change.Action = model.ActionUnchanged
	default:
		change.Action = model.ActionModified
	}

	logger.Debug().
		Str("file", block.Filename).
		Stringer("type", block.Type).
		Str("action", string(change.Action)).
		Msg("prepared block")
	return change, nil
}

func (a *Applier) patch(block model.ParsedBlock, before []byte, existed bool) ([]byte, error) {
	diff, err := patcher.Parse(block.Content)
	if err != nil {
		return nil, newError(model.KindDiffParse, block.Filename, err)
	}
	if !existed && !diff.IsCreation() {
		return nil, newError(model.KindFileNotFound, block.Filename,
			errors.Errorf("diff modifies %s but the file does not exist", block.Filename))
	}
	if existed && diff.OldPath == patcher.DevNull && len(before) > 0 {
		return nil, newError(model.KindPatchConflict, block.Filename,
			errors.Errorf("diff creates %s but the file already has content", block.Filename))
	}

	out, err := a.patcher.ApplyDiff(string(before), diff)
	if err != nil {
		return nil, newError(model.KindPatchConflict, block.Filename, err)
	}
	return []byte(out), nil
}

// Commit writes a prepared change. Unchanged targets are not rewritten.
func (a *Applier) Commit(ctx context.Context, change *Change) error {
	if change.Action == model.ActionUnchanged {
		return nil
	}
	if err := a.ws.WriteFileAtomic(change.Filename, change.After); err != nil {
		return newError(model.KindIO, change.Filename, err)
	}
	zerolog.Ctx(ctx).Debug().
		Str("file", change.Filename).
		Int("bytes", len(change.After)).
		Msg("wrote file")
	return nil
}
