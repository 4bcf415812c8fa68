package parser

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/snippy.go/model"
)

func parse(t *testing.T, opts Options, text string) Result {
	t.Helper()
	return NewExtractor(opts).Parse(context.Background(), text)
}

func TestHeadingAnnotation(t *testing.T) {
	res := parse(t, Options{}, "Some intro.\n\n### `./src/foo.rs`\n```rust\nfn main(){}\n```\n")
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, model.ParsedBlock{Filename: "src/foo.rs", Content: "fn main(){}\n", Type: model.FullContent}, res.Blocks[0])
}

func TestProseHeadingIsNotAnnotation(t *testing.T) {
	text := "# Relevant Code\n\n## How `config` works\n```go\nfmt.Println(cfg)\n```\n\n" +
		"### Update `README`\n```\nsome text\n```\n"
	res := parse(t, Options{}, text)
	assert.Empty(t, res.Blocks)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, model.KindParse, res.Skipped[0].Kind)
}

func TestProseHeadingDoesNotConflictWithFirstLine(t *testing.T) {
	text := "### Changes in `src`\n```rust\n// filename: src/a.rs\nfn a() {}\n```\n"
	res := parse(t, Options{}, text)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, "src/a.rs", res.Blocks[0].Filename)
	assert.Empty(t, res.Skipped)
}

func TestHeadingWithTrailingColon(t *testing.T) {
	res := parse(t, Options{}, "## `lib/util.py`:\n```python\nx = 1\n```\n")
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, "lib/util.py", res.Blocks[0].Filename)
}

func TestFirstLineAnnotation(t *testing.T) {
	tests := []struct {
		name     string
		fence    string
		filename string
		body     string
	}{
		{"slash", "```rust\n// filename: src/lib.rs\npub fn f() {}\n```\n", "src/lib.rs", "pub fn f() {}\n"},
		{"hash", "```python\n# filename: app/main.py\nprint('hi')\n```\n", "app/main.py", "print('hi')\n"},
		{"html", "```html\n<!-- filename: index.html -->\n<p>hi</p>\n```\n", "index.html", "<p>hi</p>\n"},
		{"css", "```css\n/* filename: site.css */\nbody {}\n```\n", "site.css", "body {}\n"},
		{"backticked", "```go\n// filename: `cmd/main.go`\npackage main\n```\n", "cmd/main.go", "package main\n"},
		{"windows separators", "```go\n// filename: .\\pkg\\a.go\npackage pkg\n```\n", "pkg/a.go", "package pkg\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := parse(t, Options{}, tt.fence)
			require.Len(t, res.Blocks, 1)
			assert.Equal(t, tt.filename, res.Blocks[0].Filename)
			assert.Equal(t, tt.body, res.Blocks[0].Content)
			assert.Equal(t, model.FullContent, res.Blocks[0].Type)
		})
	}
}

func TestDiffClassification(t *testing.T) {
	diff := "--- a/bar.rs\n+++ b/bar.rs\n@@ -1,1 +1,2 @@\n fn main(){}\n+fn x(){}\n"

	t.Run("filename from header", func(t *testing.T) {
		res := parse(t, Options{}, "```diff\n"+diff+"```\n")
		require.Len(t, res.Blocks, 1)
		assert.Equal(t, "bar.rs", res.Blocks[0].Filename)
		assert.Equal(t, model.UnifiedDiff, res.Blocks[0].Type)
		assert.Equal(t, diff, res.Blocks[0].Content)
	})

	t.Run("annotation wins over header", func(t *testing.T) {
		res := parse(t, Options{}, "### `other.rs`\n```diff\n"+diff+"```\n")
		require.Len(t, res.Blocks, 1)
		assert.Equal(t, "other.rs", res.Blocks[0].Filename)
		assert.Equal(t, model.UnifiedDiff, res.Blocks[0].Type)
	})

	t.Run("git preamble is dropped", func(t *testing.T) {
		res := parse(t, Options{}, "```diff\ndiff --git a/bar.rs b/bar.rs\nindex 1..2 100644\n"+diff+"```\n")
		require.Len(t, res.Blocks, 1)
		assert.Equal(t, diff, res.Blocks[0].Content)
	})

	t.Run("header without hunk is full content", func(t *testing.T) {
		body := "--- title\n+++ more\nplain text\n"
		res := parse(t, Options{}, "### `notes.md`\n```\n"+body+"```\n")
		require.Len(t, res.Blocks, 1)
		assert.Equal(t, model.FullContent, res.Blocks[0].Type)
		assert.Equal(t, body, res.Blocks[0].Content)
	})

	t.Run("first-line annotated diff", func(t *testing.T) {
		res := parse(t, Options{}, "```diff\n// filename: bar.rs\n"+diff+"```\n")
		require.Len(t, res.Blocks, 1)
		assert.Equal(t, model.UnifiedDiff, res.Blocks[0].Type)
		assert.Equal(t, diff, res.Blocks[0].Content)
	})
}

func TestMalformedBlocksAreSkipped(t *testing.T) {
	text := "### `a.go`\n```go\npackage a\n```\n\n" +
		"```go\npackage orphan\n```\n\n" +
		"Here is the updated `b.go`:\n```go\npackage b\n```\n\n" +
		"### `c.go`\n```go\n// filename: d.go\npackage c\n```\n\n" +
		"```go\n// filename: e.go\npackage e\n```\n"

	res := parse(t, Options{}, text)
	require.Len(t, res.Blocks, 2)
	assert.Equal(t, "a.go", res.Blocks[0].Filename)
	assert.Equal(t, "e.go", res.Blocks[1].Filename)

	require.Len(t, res.Skipped, 3)
	for _, s := range res.Skipped {
		assert.Equal(t, model.KindParse, s.Kind)
	}
	assert.Equal(t, []int{1, 2, 3}, []int{res.Skipped[0].Index, res.Skipped[1].Index, res.Skipped[2].Index})
	assert.Contains(t, res.Skipped[2].Reason, "ambiguous")
}

func TestMatchingAnnotationsAreNotAmbiguous(t *testing.T) {
	res := parse(t, Options{}, "### `c.go`\n```go\n// filename: ./c.go\npackage c\n```\n")
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, "package c\n", res.Blocks[0].Content)
}

func TestAnnotationModes(t *testing.T) {
	text := "### `a.go`\n```go\npackage a\n```\n```go\n// filename: b.go\npackage b\n```\n"

	res := parse(t, Options{Mode: AnnotationHeading}, text)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, "a.go", res.Blocks[0].Filename)

	res = parse(t, Options{Mode: AnnotationFirstLine}, text)
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, "b.go", res.Blocks[0].Filename)

	_, ok := ParseAnnotationMode("sideways")
	assert.False(t, ok)
}

func TestOrderAndDuplicatesPreserved(t *testing.T) {
	text := "### `x.txt`\n```\none\n```\n### `y.txt`\n```\ntwo\n```\n### `x.txt`\n```\nthree\n```\n"
	blocks := NewExtractor(Options{}).Extract(context.Background(), text)
	require.Len(t, blocks, 3)
	assert.Equal(t, []string{"x.txt", "y.txt", "x.txt"}, []string{blocks[0].Filename, blocks[1].Filename, blocks[2].Filename})
	assert.Equal(t, "three\n", blocks[2].Content)
}

func TestUnterminatedFenceRunsToEnd(t *testing.T) {
	res := parse(t, Options{}, "### `partial.py`\n```python\nprint(1)\nprint(2)\n")
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, "print(1)\nprint(2)\n", res.Blocks[0].Content)
}

func TestExtensionFilter(t *testing.T) {
	text := "### `a.go`\n```go\npackage a\n```\n### `b.py`\n```python\nx = 1\n```\n" +
		"```diff\n--- a/c.go\n+++ b/c.go\n@@ -1 +1 @@\n-a\n+b\n```\n"

	blocks := NewExtractor(Options{Extensions: []string{".py"}}).Extract(context.Background(), text)
	require.Len(t, blocks, 1)
	assert.Equal(t, "b.py", blocks[0].Filename)

	blocks = NewExtractor(Options{Extensions: []string{".diff"}}).Extract(context.Background(), text)
	require.Len(t, blocks, 1)
	assert.Equal(t, "c.go", blocks[0].Filename)
}

func TestCommentStyleFor(t *testing.T) {
	assert.Equal(t, SlashComment, CommentStyleFor("main.rs"))
	assert.Equal(t, HashComment, CommentStyleFor("ci.YAML"))
	assert.Equal(t, HTMLComment, CommentStyleFor("index.html"))
	assert.Equal(t, BlockComment, CommentStyleFor("site.css"))
	assert.Equal(t, SlashComment, CommentStyleFor("Makefile"))
	assert.Equal(t, "<!-- filename: a.xml -->\n", HTMLComment.Annotate("a.xml"))
}

func TestExtractPathFromDiff(t *testing.T) {
	assert.Equal(t, "x/y.go", ExtractPathFromDiff("--- a/x/y.go\n+++ b/x/y.go\n@@ -1 +1 @@\n"))
	assert.Equal(t, "gone.go", ExtractPathFromDiff("--- a/gone.go\n+++ /dev/null\n@@ -1 +0,0 @@\n"))
	assert.Equal(t, "new.go", ExtractPathFromDiff("--- /dev/null\n+++ new.go\t2024-01-01\n@@ -0,0 +1 @@\n"))
}

func syntheticBlocks(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "```rust\n// filename: test%d.rs\nfn main() { println!(\"Hello, %d!\"); }\n```\n", i, i)
	}
	return b.String()
}

func TestLargeExtraction(t *testing.T) {
	const count = 10_000
	text := syntheticBlocks(count)

	start := time.Now()
	blocks := NewExtractor(Options{}).Extract(context.Background(), text)
	elapsed := time.Since(start)

	require.Len(t, blocks, count)
	assert.Equal(t, "test0.rs", blocks[0].Filename)
	assert.Equal(t, "test9999.rs", blocks[count-1].Filename)
	assert.Less(t, elapsed, 10*time.Second, "extraction took %s", elapsed)
}

// fastestExtraction returns the best of several runs to damp scheduler noise.
func fastestExtraction(n int) time.Duration {
	text := syntheticBlocks(n)
	e := NewExtractor(Options{})
	best := time.Duration(0)
	for i := 0; i < 3; i++ {
		start := time.Now()
		e.Extract(context.Background(), text)
		if d := time.Since(start); best == 0 || d < best {
			best = d
		}
	}
	return best
}

func TestExtractionScalesLinearly(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	small := max(fastestExtraction(1_000), time.Millisecond)
	large := fastestExtraction(10_000)

	// 10x the blocks; quadratic growth would be close to 100x.
	ratio := float64(large) / float64(small)
	assert.Less(t, ratio, 40.0, "1k blocks took %s, 10k blocks took %s", small, large)
}

func BenchmarkExtract(b *testing.B) {
	for _, n := range []int{1_000, 10_000} {
		text := syntheticBlocks(n)
		e := NewExtractor(Options{})
		b.Run(fmt.Sprintf("blocks=%d", n), func(b *testing.B) {
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				e.Extract(context.Background(), text)
			}
		})
	}
}
