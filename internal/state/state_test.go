package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/snippy.go/internal/applier"
	"github.com/sokinpui/snippy.go/internal/fs"
	"github.com/sokinpui/snippy.go/internal/patcher"
	"github.com/sokinpui/snippy.go/model"
)

type fixture struct {
	dir     string
	applier *applier.Applier
	manager *Manager
}

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()
	dir := t.TempDir()
	ws, err := fs.NewWorkspace(dir)
	require.NoError(t, err)
	m, err := New(ws, limit)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return &fixture{dir: dir, applier: applier.New(ws, patcher.DefaultSearchWindow), manager: m}
}

func (f *fixture) apply(t *testing.T, blocks ...model.ParsedBlock) []*applier.Change {
	t.Helper()
	outcomes := f.applier.ApplyAll(context.Background(), blocks, 0)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
	}
	return applier.Changes(outcomes)
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	p := filepath.Join(f.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	require.NoError(t, err)
	return string(data)
}

func full(name, content string) model.ParsedBlock {
	return model.ParsedBlock{Filename: name, Content: content, Type: model.FullContent}
}

func TestRecordAndUndo(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.write(t, "keep.txt", "original\n")

	changes := f.apply(t, full("keep.txt", "edited\n"), full("new/dir/made.txt", "fresh\n"))
	entry, err := f.manager.Record(ctx, changes)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Len(t, entry.Operations, 2)
	assert.Equal(t, model.ActionModified, entry.Operations[0].Action)
	assert.Equal(t, model.ActionCreated, entry.Operations[1].Action)
	assert.FileExists(t, filepath.Join(f.dir, StateDirName, entry.Operations[0].Blob))

	res, err := f.manager.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.txt"}, res.Restored)
	assert.Equal(t, []string{"new/dir/made.txt"}, res.Removed)

	assert.Equal(t, "original\n", f.read(t, "keep.txt"))
	assert.NoFileExists(t, filepath.Join(f.dir, "new/dir/made.txt"))
	assert.NoDirExists(t, filepath.Join(f.dir, "new"))

	entries, err := f.manager.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = f.manager.Undo(ctx)
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestUndoRefusesWhenFileChangedSince(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.write(t, "a.txt", "one\n")

	_, err := f.manager.Record(ctx, f.apply(t, full("a.txt", "two\n"), full("b.txt", "b\n")))
	require.NoError(t, err)
	f.write(t, "a.txt", "edited by hand\n")

	_, err = f.manager.Undo(ctx)
	assert.ErrorIs(t, err, ErrModified)
	assert.Equal(t, "edited by hand\n", f.read(t, "a.txt"))
	assert.Equal(t, "b\n", f.read(t, "b.txt"), "nothing is touched when any file changed")

	entries, err := f.manager.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecordCollapsesRepeatedWrites(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	f.write(t, "x.txt", "v0\n")

	changes := f.apply(t, full("x.txt", "v1\n"), full("x.txt", "v2\n"))
	require.Len(t, changes, 2)
	entry, err := f.manager.Record(ctx, changes)
	require.NoError(t, err)
	require.Len(t, entry.Operations, 1)

	_, err = f.manager.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v0\n", f.read(t, "x.txt"))
}

func TestRecordSkipsNetNoop(t *testing.T) {
	f := newFixture(t, 0)
	f.write(t, "x.txt", "v0\n")

	entry, err := f.manager.Record(context.Background(), f.apply(t, full("x.txt", "v1\n"), full("x.txt", "v0\n")))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestHistoryLimit(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.write(t, "x.txt", "v0\n")

	var first *HistoryEntry
	for i, content := range []string{"v1\n", "v2\n", "v3\n"} {
		entry, err := f.manager.Record(ctx, f.apply(t, full("x.txt", content)))
		require.NoError(t, err)
		if i == 0 {
			first = entry
		}
	}

	entries, err := f.manager.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEqual(t, first.ID, entries[0].ID)
	assert.NoDirExists(t, filepath.Join(f.dir, StateDirName, blobDirName, first.ID))

	for range entries {
		_, err := f.manager.Undo(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, "v1\n", f.read(t, "x.txt"))
}
