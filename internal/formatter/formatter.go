package formatter

import (
	"fmt"
	"path"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/sokinpui/snippy.go/internal/parser"
)

// FilenameFormat selects how each file announces its path.
type FilenameFormat string

const (
	FilenameNone      FilenameFormat = "none"
	FilenameHeading   FilenameFormat = "heading"
	FilenameFirstLine FilenameFormat = "first-line"
)

// Wrap selects how each file body is delimited.
type Wrap string

const (
	WrapMarkdown Wrap = "markdown"
	WrapXML      Wrap = "xml"
	WrapNone     Wrap = "none"
)

const (
	DefaultHeader = "# Relevant Code\n"
	DefaultPrefix = "|"
)

// Options configures a Formatter.
type Options struct {
	FilenameFormat FilenameFormat
	Wrap           Wrap
	// LineNumberWidth pads line numbers to this width; 0 disables them.
	LineNumberWidth int
	// Prefix separates line numbers from the line text.
	Prefix string
	// Header is written once before all files.
	Header string
}

// File is one file to serialize.
type File struct {
	Path    string
	Content string
}

// Formatter serializes files into annotated text for pasting.
type Formatter struct {
	opts Options
}

// New validates opts and creates a Formatter.
func New(opts Options) (*Formatter, error) {
	if opts.FilenameFormat == "" {
		opts.FilenameFormat = FilenameHeading
	}
	if opts.Wrap == "" {
		opts.Wrap = WrapMarkdown
	}
	switch opts.FilenameFormat {
	case FilenameNone, FilenameHeading, FilenameFirstLine:
	default:
		return nil, errors.Errorf("unknown filename format %q", opts.FilenameFormat)
	}
	switch opts.Wrap {
	case WrapMarkdown, WrapXML, WrapNone:
	default:
		return nil, errors.Errorf("unknown wrap %q", opts.Wrap)
	}
	if opts.LineNumberWidth < 0 {
		return nil, errors.Errorf("line number width must not be negative, got %d", opts.LineNumberWidth)
	}
	return &Formatter{opts: opts}, nil
}

// Format renders the header followed by every file in order.
func (f *Formatter) Format(files []File) string {
	var b strings.Builder
	if f.opts.Header != "" {
		b.WriteString(f.opts.Header)
		if !strings.HasSuffix(f.opts.Header, "\n") {
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	for i, file := range files {
		if i > 0 {
			b.WriteByte('\n')
		}
		f.writeFile(&b, file)
	}
	return b.String()
}

// FormatFile renders a single file without the header.
func (f *Formatter) FormatFile(file File) string {
	var b strings.Builder
	f.writeFile(&b, file)
	return b.String()
}

func (f *Formatter) writeFile(b *strings.Builder, file File) {
	var body strings.Builder
	if f.opts.FilenameFormat == FilenameFirstLine {
		body.WriteString(parser.CommentStyleFor(file.Path).Annotate(file.Path))
	}
	body.WriteString(f.numbered(file.Content))

	switch f.opts.Wrap {
	case WrapMarkdown:
		if f.opts.FilenameFormat == FilenameHeading {
			fmt.Fprintf(b, "### `%s`\n", file.Path)
		}
		fence := fenceFor(body.String())
		fmt.Fprintf(b, "%s%s\n%s%s\n", fence, languageFor(file.Path), body.String(), fence)
	case WrapXML:
		if f.opts.FilenameFormat == FilenameHeading {
			fmt.Fprintf(b, "<file path=%q>\n", file.Path)
		} else {
			b.WriteString("<file>\n")
		}
		b.WriteString(body.String())
		b.WriteString("</file>\n")
	default:
		if f.opts.FilenameFormat == FilenameHeading {
			fmt.Fprintf(b, "### `%s`\n", file.Path)
		}
		b.WriteString(body.String())
	}
}

// numbered returns content with a trailing newline, prefixing line numbers
// when enabled.
func (f *Formatter) numbered(content string) string {
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if f.opts.LineNumberWidth == 0 || content == "" {
		return content
	}

	lines := strings.SplitAfter(content, "\n")
	var b strings.Builder
	b.Grow(len(content) + len(lines)*(f.opts.LineNumberWidth+len(f.opts.Prefix)))
	for i, line := range lines {
		if line == "" {
			continue
		}
		fmt.Fprintf(&b, "%0*d%s%s", f.opts.LineNumberWidth, i+1, f.opts.Prefix, line)
	}
	return b.String()
}

// fenceFor returns a backtick fence longer than any backtick run in body.
func fenceFor(body string) string {
	longest, run := 0, 0
	for _, r := range body {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}

var languages = map[string]string{
	"rs": "rust", "py": "python", "js": "javascript", "ts": "typescript",
	"md": "markdown", "sh": "bash", "yml": "yaml", "rb": "ruby", "cs": "csharp",
	"h": "c", "fs": "fsharp",
}

func languageFor(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if lang, ok := languages[ext]; ok {
		return lang
	}
	return ext
}
