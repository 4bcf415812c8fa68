package parser

import (
	"path"
	"strings"
)

// CommentStyle is the comment syntax used for a first-line filename annotation.
type CommentStyle struct {
	Open  string
	Close string
}

var (
	SlashComment = CommentStyle{Open: "//"}
	HashComment  = CommentStyle{Open: "#"}
	HTMLComment  = CommentStyle{Open: "<!--", Close: "-->"}
	BlockComment = CommentStyle{Open: "/*", Close: "*/"}
)

// Longest openers first so "<!--" is not mistaken for something shorter.
var allStyles = []CommentStyle{HTMLComment, SlashComment, BlockComment, HashComment}

var commentStyles = map[string]CommentStyle{
	"rs": SlashComment, "js": SlashComment, "ts": SlashComment, "tsx": SlashComment,
	"jsx": SlashComment, "java": SlashComment, "c": SlashComment, "cpp": SlashComment,
	"h": SlashComment, "cs": SlashComment, "fs": SlashComment, "json": SlashComment,
	"go": SlashComment,

	"py": HashComment, "toml": HashComment, "sh": HashComment, "yml": HashComment,
	"yaml": HashComment, "rb": HashComment,

	"html": HTMLComment, "xml": HTMLComment, "md": HTMLComment,

	"css": BlockComment,
}

// CommentStyleFor returns the comment syntax for filename's extension,
// defaulting to "//".
func CommentStyleFor(filename string) CommentStyle {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if style, ok := commentStyles[ext]; ok {
		return style
	}
	return SlashComment
}

// Annotate returns the first-line annotation for filename, newline included.
func (c CommentStyle) Annotate(filename string) string {
	if c.Close != "" {
		return c.Open + " filename: " + filename + " " + c.Close + "\n"
	}
	return c.Open + " filename: " + filename + "\n"
}

// parseFilenameComment recognises "<open> filename: <path> <close>" in any
// known comment style. The path may be wrapped in backticks or quotes.
func parseFilenameComment(line string) (string, CommentStyle, bool) {
	line = strings.TrimSpace(line)
	for _, style := range allStyles {
		if !strings.HasPrefix(line, style.Open) {
			continue
		}
		inner := strings.TrimPrefix(line, style.Open)
		if style.Close != "" {
			if !strings.HasSuffix(inner, style.Close) {
				continue
			}
			inner = strings.TrimSuffix(inner, style.Close)
		}
		inner = strings.TrimSpace(inner)

		const key = "filename:"
		if len(inner) < len(key) || !strings.EqualFold(inner[:len(key)], key) {
			return "", CommentStyle{}, false
		}
		p := strings.Trim(strings.TrimSpace(inner[len(key):]), "`\"'")
		if p == "" || strings.ContainsAny(p, " \t") {
			return "", CommentStyle{}, false
		}
		return p, style, true
	}
	return "", CommentStyle{}, false
}
