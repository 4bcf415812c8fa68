package parser

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sokinpui/snippy.go/internal/fs"
	"github.com/sokinpui/snippy.go/internal/patcher"
	"github.com/sokinpui/snippy.go/model"
)

// AnnotationMode selects which filename annotation styles are recognised.
type AnnotationMode string

const (
	// AnnotationAuto accepts both heading and first-line annotations.
	AnnotationAuto AnnotationMode = "auto"
	// AnnotationHeading reads the path from a heading such as "### `path`"
	// immediately before the fence.
	AnnotationHeading AnnotationMode = "heading"
	// AnnotationFirstLine reads the path from a "filename: path" comment on
	// the first line inside the fence.
	AnnotationFirstLine AnnotationMode = "first-line"
)

// ParseAnnotationMode validates a mode name; the empty string means auto.
func ParseAnnotationMode(s string) (AnnotationMode, bool) {
	switch AnnotationMode(s) {
	case "", AnnotationAuto:
		return AnnotationAuto, true
	case AnnotationHeading, AnnotationFirstLine:
		return AnnotationMode(s), true
	}
	return "", false
}

func (m AnnotationMode) headings() bool  { return m != AnnotationFirstLine }
func (m AnnotationMode) firstLine() bool { return m != AnnotationHeading }

var (
	pathInHintRegex = regexp.MustCompile("`([^`\n]+)`")
	// A heading or paragraph only counts as an annotation when it is nothing
	// but the path.
	bareHintRegex = regexp.MustCompile("^`[^`\n]+`:?$")
)

// Options configures an Extractor.
type Options struct {
	Mode AnnotationMode
	// Extensions filters blocks by target extension (with leading dot). A
	// single ".diff" entry keeps only diff blocks. Empty means no filter.
	Extensions []string
}

// Skip records a fenced block that was dropped during extraction.
type Skip struct {
	// Index is the position of the fenced block among all fences.
	Index  int
	Kind   model.ErrorKind
	Reason string
}

// Result is the outcome of parsing one text snapshot.
type Result struct {
	Blocks  []model.ParsedBlock
	Skipped []Skip
}

// Extractor turns pasted text into ordered per-file change blocks.
type Extractor struct {
	opts Options
}

// NewExtractor creates an Extractor.
func NewExtractor(opts Options) *Extractor {
	if opts.Mode == "" {
		opts.Mode = AnnotationAuto
	}
	return &Extractor{opts: opts}
}

// Extract returns the valid blocks of text in document order.
func (e *Extractor) Extract(ctx context.Context, text string) []model.ParsedBlock {
	return e.Parse(ctx, text).Blocks
}

// Parse returns the valid blocks of text in document order together with
// the fences that were skipped. Malformed fences never abort parsing.
func (e *Extractor) Parse(ctx context.Context, text string) Result {
	logger := zerolog.Ctx(ctx)

	var res Result
	codeBlocks, err := ExtractCodeBlocks([]byte(text))
	if err != nil {
		logger.Warn().Err(err).Msg("markdown walk failed")
		return res
	}

	diffOnly := len(e.opts.Extensions) == 1 && e.opts.Extensions[0] == ".diff"

	for i, cb := range codeBlocks {
		block, reason := e.parseBlock(ctx, cb)
		if reason != "" {
			logger.Warn().Int("block", i+1).Str("lang", cb.Lang).Msgf("Skipping code block: %s", reason)
			res.Skipped = append(res.Skipped, Skip{Index: i, Kind: model.KindParse, Reason: reason})
			continue
		}
		if diffOnly && block.Type != model.UnifiedDiff {
			continue
		}
		if !diffOnly && !hasAllowedExtension(block.Filename, e.opts.Extensions) {
			continue
		}
		res.Blocks = append(res.Blocks, block)
	}
	return res
}

// parseBlock builds a ParsedBlock from a fenced block, or returns the reason
// it cannot.
func (e *Extractor) parseBlock(ctx context.Context, cb CodeBlock) (model.ParsedBlock, string) {
	content := cb.Content

	var headingPath string
	if e.opts.Mode.headings() {
		if bareHintRegex.MatchString(strings.TrimSpace(cb.Hint)) {
			headingPath = extractPathFromHint(cb.Hint)
		}
	}

	var firstLinePath string
	if e.opts.Mode.firstLine() {
		first, rest, _ := strings.Cut(content, "\n")
		if p, style, ok := parseFilenameComment(first); ok {
			firstLinePath = p
			content = rest
			if expected := CommentStyleFor(p); expected != style {
				zerolog.Ctx(ctx).Debug().Str("file", p).
					Str("comment", style.Open).Str("expected", expected.Open).
					Msg("filename comment style does not match extension")
			}
		}
	}

	if headingPath != "" && firstLinePath != "" && fs.NormalizePath(headingPath) != fs.NormalizePath(firstLinePath) {
		return model.ParsedBlock{}, "ambiguous annotation: heading names " + headingPath + " but first line names " + firstLinePath
	}

	filename := headingPath
	if filename == "" {
		filename = firstLinePath
	}

	blockType, payload := classify(content)
	if filename == "" && blockType == model.UnifiedDiff {
		filename = ExtractPathFromDiff(payload)
	}

	filename = fs.NormalizePath(filename)
	if filename == "" || filename == "." {
		return model.ParsedBlock{}, "no filename annotation found"
	}

	return model.ParsedBlock{Filename: filename, Content: payload, Type: blockType}, ""
}

// classify reports whether content is a unified diff: a ---/+++ header pair
// (optionally preceded by git metadata) followed by at least one hunk
// header. Diff payloads are returned starting at the header pair.
func classify(content string) (model.BlockType, string) {
	rest := content
	for rest != "" {
		line, next, _ := strings.Cut(rest, "\n")
		if !patcher.IsPreamble(line) && strings.TrimSpace(line) != "" {
			break
		}
		rest = next
	}

	first, afterFirst, _ := strings.Cut(rest, "\n")
	second, body, _ := strings.Cut(afterFirst, "\n")
	if !strings.HasPrefix(first, "---") || !strings.HasPrefix(second, "+++") {
		return model.FullContent, content
	}

	for body != "" {
		var line string
		line, body, _ = strings.Cut(body, "\n")
		if patcher.IsHunkHeader(line) {
			return model.UnifiedDiff, rest
		}
	}
	return model.FullContent, content
}

// ExtractPathFromDiff finds the target path in a diff's header pair.
func ExtractPathFromDiff(content string) string {
	diffHeader := content
	if i := strings.Index(diffHeader, "\n@@"); i >= 0 {
		diffHeader = diffHeader[:i]
	}
	var oldPath, newPath string
	for _, line := range strings.Split(diffHeader, "\n") {
		switch {
		case strings.HasPrefix(line, "--- ") && oldPath == "":
			oldPath = headerField(line[4:])
		case strings.HasPrefix(line, "+++ ") && newPath == "":
			newPath = headerField(line[4:])
		}
	}
	d := patcher.Diff{OldPath: oldPath, NewPath: newPath}
	return d.Path()
}

func headerField(s string) string {
	if tab := strings.IndexByte(s, '\t'); tab >= 0 {
		s = s[:tab]
	}
	return strings.TrimSpace(s)
}

func extractPathFromHint(hint string) string {
	hint = strings.TrimSpace(hint)

	// A path hint must be enclosed in backticks, e.g., `path/to/file.go`
	if match := pathInHintRegex.FindStringSubmatch(hint); len(match) > 1 {
		path := strings.TrimSpace(match[1])
		// Disallow spaces to avoid capturing commands like `go run main.go` as a path.
		if !strings.Contains(path, " ") {
			return path
		}
	}

	return ""
}

func hasAllowedExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowedExt := range extensions {
		if ext == allowedExt {
			return true
		}
	}
	return false
}
