package applier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/snippy.go/internal/fs"
	"github.com/sokinpui/snippy.go/internal/patcher"
	"github.com/sokinpui/snippy.go/model"
)

func newApplier(t *testing.T) (*Applier, string) {
	t.Helper()
	dir := t.TempDir()
	ws, err := fs.NewWorkspace(dir)
	require.NoError(t, err)
	return New(ws, patcher.DefaultSearchWindow), dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func TestApplyFullContentRoundTripAndIdempotence(t *testing.T) {
	a, dir := newApplier(t)
	ctx := context.Background()
	block := model.ParsedBlock{Filename: "src/deep/foo.rs", Content: "fn main(){}\n", Type: model.FullContent}

	change, err := a.Apply(ctx, block)
	require.NoError(t, err)
	assert.Equal(t, model.ActionCreated, change.Action)
	assert.Equal(t, block.Content, readFile(t, dir, "src/deep/foo.rs"))

	change, err = a.Apply(ctx, block)
	require.NoError(t, err)
	assert.Equal(t, model.ActionUnchanged, change.Action)
	assert.Equal(t, block.Content, readFile(t, dir, "src/deep/foo.rs"))
}

func TestApplyFullContentOverwrite(t *testing.T) {
	a, dir := newApplier(t)
	writeFile(t, dir, "foo.txt", "old\n")

	change, err := a.Apply(context.Background(), model.ParsedBlock{Filename: "foo.txt", Content: "new\n"})
	require.NoError(t, err)
	assert.Equal(t, model.ActionModified, change.Action)
	assert.Equal(t, "old\n", string(change.Before))
	assert.Equal(t, "new\n", readFile(t, dir, "foo.txt"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestApplyEmptyContentWritesEmptyFile(t *testing.T) {
	a, dir := newApplier(t)
	writeFile(t, dir, "keep.txt", "something\n")

	_, err := a.Apply(context.Background(), model.ParsedBlock{Filename: "keep.txt", Content: ""})
	require.NoError(t, err)
	assert.Equal(t, "", readFile(t, dir, "keep.txt"))
}

func TestApplyRejectsPathsOutsideBase(t *testing.T) {
	a, _ := newApplier(t)
	for _, name := range []string{"../escape.txt", "a/../../escape.txt", "/etc/passwd"} {
		_, err := a.Apply(context.Background(), model.ParsedBlock{Filename: name, Content: "x"})
		require.Error(t, err, name)
		assert.Equal(t, model.KindIO, KindOf(err), name)
	}
}

func TestApplyDiffMatchesManualPatch(t *testing.T) {
	a, dir := newApplier(t)
	writeFile(t, dir, "bar.rs", "fn main(){}\n")

	block := model.ParsedBlock{
		Filename: "bar.rs",
		Type:     model.UnifiedDiff,
		Content:  "--- a/bar.rs\n+++ b/bar.rs\n@@ -1,1 +1,2 @@\n fn main(){}\n+fn helper(){}\n",
	}
	change, err := a.Apply(context.Background(), block)
	require.NoError(t, err)
	assert.Equal(t, model.ActionModified, change.Action)
	assert.Equal(t, "fn main(){}\nfn helper(){}\n", readFile(t, dir, "bar.rs"))
}

func TestApplyDiffErrors(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		content  string
		kind     model.ErrorKind
	}{
		{
			name:    "missing file",
			content: "--- a/t.txt\n+++ b/t.txt\n@@ -1,1 +1,1 @@\n-a\n+b\n",
			kind:    model.KindFileNotFound,
		},
		{
			name:     "malformed counts",
			existing: "a\n",
			content:  "--- a/t.txt\n+++ b/t.txt\n@@ -1,2 +1,2 @@\n-a\n+b\n",
			kind:     model.KindDiffParse,
		},
		{
			name:     "drifted context",
			existing: "x\ny\nz\n",
			content:  "--- a/t.txt\n+++ b/t.txt\n@@ -1,1 +1,1 @@\n-a\n+b\n",
			kind:     model.KindPatchConflict,
		},
		{
			name:     "creation over existing content",
			existing: "already here\n",
			content:  "--- /dev/null\n+++ b/t.txt\n@@ -0,0 +1,1 @@\n+new\n",
			kind:     model.KindPatchConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, dir := newApplier(t)
			if tt.existing != "" {
				writeFile(t, dir, "t.txt", tt.existing)
			}

			_, err := a.Apply(context.Background(), model.ParsedBlock{Filename: "t.txt", Type: model.UnifiedDiff, Content: tt.content})
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))

			if tt.existing != "" {
				assert.Equal(t, tt.existing, readFile(t, dir, "t.txt"), "file must be left untouched")
			}
		})
	}
}

func TestApplyDiffPartialFailureWritesNothing(t *testing.T) {
	a, dir := newApplier(t)
	writeFile(t, dir, "t.txt", "one\ntwo\nthree\nfour\nfive\nsix\nseven\neight\nnine\nten\n")

	block := model.ParsedBlock{
		Filename: "t.txt",
		Type:     model.UnifiedDiff,
		Content: "--- a/t.txt\n+++ b/t.txt\n" +
			"@@ -1,1 +1,1 @@\n-one\n+ONE\n" +
			"@@ -9,1 +9,1 @@\n-not nine\n+NINE\n",
	}
	_, err := a.Apply(context.Background(), block)
	require.Error(t, err)
	assert.Equal(t, model.KindPatchConflict, KindOf(err))
	assert.Equal(t, "one\ntwo\nthree\nfour\nfive\nsix\nseven\neight\nnine\nten\n", readFile(t, dir, "t.txt"))
}

func TestApplyDiffCreatesNewFile(t *testing.T) {
	a, dir := newApplier(t)
	block := model.ParsedBlock{
		Filename: "pkg/new.go",
		Type:     model.UnifiedDiff,
		Content:  "--- /dev/null\n+++ b/pkg/new.go\n@@ -0,0 +1,1 @@\n+package pkg\n",
	}
	change, err := a.Apply(context.Background(), block)
	require.NoError(t, err)
	assert.Equal(t, model.ActionCreated, change.Action)
	assert.Equal(t, "package pkg\n", readFile(t, dir, "pkg/new.go"))
}

func TestPrepareDoesNotWrite(t *testing.T) {
	a, dir := newApplier(t)
	writeFile(t, dir, "p.txt", "a\nb\n")

	change, err := a.Prepare(context.Background(), model.ParsedBlock{Filename: "p.txt", Content: "a\nc\n"})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", readFile(t, dir, "p.txt"))

	preview, err := change.UnifiedDiff()
	require.NoError(t, err)
	assert.Contains(t, preview, "--- a/p.txt")
	assert.Contains(t, preview, "+++ b/p.txt")
	assert.Contains(t, preview, "-b\n")
	assert.Contains(t, preview, "+c\n")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, model.KindNone, KindOf(nil))
	assert.Equal(t, model.KindIO, KindOf(os.ErrPermission))
	assert.Equal(t, model.KindPatchConflict, KindOf(newError(model.KindPatchConflict, "x", os.ErrInvalid)))
}

func TestApplyAllKeepsOrderAndIsolatesFailures(t *testing.T) {
	a, dir := newApplier(t)
	writeFile(t, dir, "corrupt.txt", "completely\ndifferent\n")

	blocks := []model.ParsedBlock{
		{Filename: "a.txt", Content: "a\n", Type: model.FullContent},
		{Filename: "corrupt.txt", Content: "--- a/corrupt.txt\n+++ b/corrupt.txt\n@@ -1,2 +1,2 @@\n hello\n-world\n+there\n", Type: model.UnifiedDiff},
		{Filename: "b.txt", Content: "b\n", Type: model.FullContent},
	}

	outcomes := a.ApplyAll(context.Background(), blocks, 2)
	require.Len(t, outcomes, 3)
	for i, o := range outcomes {
		assert.Equal(t, i, o.Index)
		assert.Equal(t, blocks[i].Filename, o.Filename)
	}
	assert.True(t, outcomes[0].OK())
	assert.Equal(t, model.KindPatchConflict, outcomes[1].Kind)
	assert.True(t, outcomes[2].OK())

	assert.Equal(t, "a\n", readFile(t, dir, "a.txt"))
	assert.Equal(t, "b\n", readFile(t, dir, "b.txt"))
	assert.Equal(t, "completely\ndifferent\n", readFile(t, dir, "corrupt.txt"))

	changes := Changes(outcomes)
	require.Len(t, changes, 2)
	assert.Equal(t, "a.txt", changes[0].Filename)
}

func TestApplyAllSameFileLastWriteWins(t *testing.T) {
	a, dir := newApplier(t)

	var blocks []model.ParsedBlock
	for i := 0; i < 20; i++ {
		blocks = append(blocks, model.ParsedBlock{Filename: "same.txt", Content: fmt.Sprintf("v%d\n", i), Type: model.FullContent})
	}
	blocks = append(blocks, model.ParsedBlock{
		Filename: "same.txt",
		Content:  "--- a/same.txt\n+++ b/same.txt\n@@ -1 +1,2 @@\n v19\n+tail\n",
		Type:     model.UnifiedDiff,
	})

	outcomes := a.ApplyAll(context.Background(), blocks, 8)
	for _, o := range outcomes {
		require.True(t, o.OK(), "block %d: %v", o.Index, o.Err)
	}
	assert.Equal(t, model.ActionCreated, outcomes[0].Action)
	assert.Equal(t, "v19\ntail\n", readFile(t, dir, "same.txt"))
}
