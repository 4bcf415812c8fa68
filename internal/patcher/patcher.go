package patcher

import (
	"slices"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// ErrConflict is wrapped when a hunk's context cannot be found.
var ErrConflict = errors.Base("hunk does not match target")

// DefaultSearchWindow is how many lines above and below a hunk's expected
// position are searched when the exact position does not match.
const DefaultSearchWindow = 3

// Patcher applies parsed hunks to an in-memory line buffer.
type Patcher struct {
	window int
}

// New creates a Patcher with the given search window. A negative window is
// treated as zero (exact positions only).
func New(window int) *Patcher {
	if window < 0 {
		window = 0
	}
	return &Patcher{window: window}
}

// Window returns the configured search window.
func (p *Patcher) Window() int {
	return p.window
}

// Apply applies hunks in order to a copy of lines. Each hunk is expected at
// its declared old start shifted by the net line delta of the hunks applied
// before it; if the context and removal lines are not there, the nearest
// match within the search window is used. Any unmatched hunk fails the whole
// call and lines is left untouched.
func (p *Patcher) Apply(lines []string, hunks []Hunk) ([]string, error) {
	buf := slices.Clone(lines)
	offset := 0
	floor := 0

	for i, h := range hunks {
		oldLines := h.OldLines()
		newLines := h.NewLines()

		expected := h.OldStart - 1 + offset
		if h.OldCount == 0 {
			// "-N,0" inserts after line N.
			expected = h.OldStart + offset
		}

		pos, ok := p.locate(buf, oldLines, expected, floor)
		if !ok {
			return nil, errors.Errorf("%w: hunk %d (@@ -%d,%d +%d,%d @@) not found within %d lines of line %d",
				ErrConflict, i+1, h.OldStart, h.OldCount, h.NewStart, h.NewCount, p.window, expected+1)
		}

		buf = slices.Replace(buf, pos, pos+len(oldLines), newLines...)
		floor = pos + len(newLines)
		offset += len(newLines) - len(oldLines)
	}
	return buf, nil
}

// locate finds where block occurs in buf, trying expected first and then
// expected±1 … expected±window, forward before backward. Positions before
// floor belong to earlier hunks and are never considered.
func (p *Patcher) locate(buf, block []string, expected, floor int) (int, bool) {
	for d := 0; d <= p.window; d++ {
		candidates := []int{expected + d}
		if d > 0 {
			candidates = append(candidates, expected-d)
		}
		for _, pos := range candidates {
			if pos < floor || pos < 0 || pos+len(block) > len(buf) {
				continue
			}
			if matchAt(buf, block, pos) {
				return pos, true
			}
		}
	}
	return -1, false
}

func matchAt(buf, block []string, pos int) bool {
	for i, line := range block {
		if buf[pos+i] != line {
			return false
		}
	}
	return true
}

// Text is file content split into lines, remembering its line-ending style.
type Text struct {
	Lines           []string
	TrailingNewline bool
	CRLF            bool
}

// SplitText splits content into lines without their terminators.
func SplitText(content string) Text {
	if content == "" {
		return Text{}
	}
	t := Text{CRLF: strings.Contains(content, "\r\n")}
	if t.CRLF {
		content = strings.ReplaceAll(content, "\r\n", "\n")
	}
	t.TrailingNewline = strings.HasSuffix(content, "\n")
	t.Lines = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	return t
}

// String joins the lines back using the original line-ending style.
func (t Text) String() string {
	if len(t.Lines) == 0 {
		return ""
	}
	sep := "\n"
	if t.CRLF {
		sep = "\r\n"
	}
	s := strings.Join(t.Lines, sep)
	if t.TrailingNewline {
		s += sep
	}
	return s
}

// ApplyDiff applies a parsed diff to content and returns the patched text.
func (p *Patcher) ApplyDiff(content string, diff *Diff) (string, error) {
	text := SplitText(content)
	if len(text.Lines) == 0 {
		text.TrailingNewline = true
	}

	lines, err := p.Apply(text.Lines, diff.Hunks)
	if err != nil {
		return "", err
	}
	text.Lines = lines

	for _, h := range diff.Hunks {
		switch {
		case h.NewNoEOL:
			text.TrailingNewline = false
		case h.OldNoEOL:
			text.TrailingNewline = true
		}
	}
	return text.String(), nil
}
