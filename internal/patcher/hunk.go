package patcher

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// ErrMalformed is wrapped by every error returned from Parse.
var ErrMalformed = errors.Base("malformed diff")

// DevNull is the path used by unified diffs for a missing pre- or post-image.
const DevNull = "/dev/null"

var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// LineKind tags a line inside a hunk body.
type LineKind int

const (
	Context LineKind = iota
	Addition
	Removal
)

// Line is a single tagged line of a hunk body, without its prefix.
type Line struct {
	Kind LineKind
	Text string
}

// Hunk is one contiguous edit region of a unified diff.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line

	// OldNoEOL and NewNoEOL record "\ No newline at end of file" markers.
	OldNoEOL bool
	NewNoEOL bool
}

// OldLines returns the context and removal lines, i.e. what the hunk expects
// to find in the pre-image.
func (h Hunk) OldLines() []string {
	out := make([]string, 0, h.OldCount)
	for _, l := range h.Lines {
		if l.Kind != Addition {
			out = append(out, l.Text)
		}
	}
	return out
}

// NewLines returns the context and addition lines that replace OldLines.
func (h Hunk) NewLines() []string {
	out := make([]string, 0, h.NewCount)
	for _, l := range h.Lines {
		if l.Kind != Removal {
			out = append(out, l.Text)
		}
	}
	return out
}

// Diff is a parsed single-file unified diff.
type Diff struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

// IsCreation reports whether the diff only adds lines to an empty pre-image.
func (d *Diff) IsCreation() bool {
	if d.OldPath == DevNull {
		return true
	}
	for _, h := range d.Hunks {
		if h.OldCount != 0 || h.OldStart != 0 {
			return false
		}
	}
	return len(d.Hunks) > 0
}

// Path returns the target path named by the headers, preferring the
// post-image and stripping git's a/ and b/ prefixes.
func (d *Diff) Path() string {
	p := d.NewPath
	if p == "" || p == DevNull {
		p = d.OldPath
	}
	if p == DevNull {
		return ""
	}
	return StripGitPrefix(p)
}

// StripGitPrefix removes a leading "a/" or "b/" from a diff header path.
func StripGitPrefix(p string) string {
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		return p[2:]
	}
	return p
}

// IsPreamble reports whether line is git metadata that may precede the
// ---/+++ header pair.
func IsPreamble(line string) bool {
	return strings.HasPrefix(line, "diff ") || strings.HasPrefix(line, "index ")
}

// IsHunkHeader reports whether line is a well-formed @@ header.
func IsHunkHeader(line string) bool {
	return hunkHeaderRegex.MatchString(line)
}

// Parse parses the text of a single-file unified diff. Hunk counts must
// match their bodies exactly; hunks are returned ordered by OldStart.
func Parse(content string) (*Diff, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")

	i := 0
	for i < len(lines) && (IsPreamble(lines[i]) || strings.TrimSpace(lines[i]) == "") {
		i++
	}
	if i+1 >= len(lines) || !strings.HasPrefix(lines[i], "---") || !strings.HasPrefix(lines[i+1], "+++") {
		return nil, errors.Errorf("%w: missing ---/+++ header pair", ErrMalformed)
	}

	diff := &Diff{
		OldPath: headerPath(lines[i], "---"),
		NewPath: headerPath(lines[i+1], "+++"),
	}
	i += 2

	for i < len(lines) {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "@@"):
			hunk, next, err := parseHunk(lines, i)
			if err != nil {
				return nil, err
			}
			diff.Hunks = append(diff.Hunks, hunk)
			i = next
		case strings.TrimSpace(line) == "":
			i++
		default:
			return nil, errors.Errorf("%w: unexpected line %d outside a hunk: %q", ErrMalformed, i+1, line)
		}
	}

	if len(diff.Hunks) == 0 {
		return nil, errors.Errorf("%w: no hunks", ErrMalformed)
	}
	sort.SliceStable(diff.Hunks, func(a, b int) bool {
		return diff.Hunks[a].OldStart < diff.Hunks[b].OldStart
	})
	return diff, nil
}

func headerPath(line, prefix string) string {
	p := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	// Drop timestamps that diff(1) appends after a tab.
	if tab := strings.IndexByte(p, '\t'); tab >= 0 {
		p = p[:tab]
	}
	return strings.TrimSpace(p)
}

// parseHunk reads the hunk whose header is at lines[start] and returns the
// index of the first line after its body.
func parseHunk(lines []string, start int) (Hunk, int, error) {
	m := hunkHeaderRegex.FindStringSubmatch(lines[start])
	if m == nil {
		return Hunk{}, 0, errors.Errorf("%w: bad hunk header at line %d: %q", ErrMalformed, start+1, lines[start])
	}

	var h Hunk
	var err error
	for _, f := range []struct {
		dst *int
		val string
	}{{&h.OldStart, m[1]}, {&h.OldCount, m[2]}, {&h.NewStart, m[3]}, {&h.NewCount, m[4]}} {
		if *f.dst, err = headerNumber(f.val); err != nil {
			return Hunk{}, 0, errors.Errorf("%w: bad number in hunk header at line %d: %v", ErrMalformed, start+1, err)
		}
	}

	oldSeen, newSeen := 0, 0
	last := Context
	j := start + 1
	for j < len(lines) {
		line := lines[j]
		if strings.HasPrefix(line, `\`) {
			if last == Addition {
				h.NewNoEOL = true
			} else if last == Removal {
				h.OldNoEOL = true
			} else {
				h.OldNoEOL, h.NewNoEOL = true, true
			}
			j++
			continue
		}
		if oldSeen == h.OldCount && newSeen == h.NewCount {
			break
		}

		var l Line
		switch {
		case line == "":
			// Blank context lines often lose their leading space in pasted text.
			l = Line{Kind: Context}
		case line[0] == ' ':
			l = Line{Kind: Context, Text: line[1:]}
		case line[0] == '+':
			l = Line{Kind: Addition, Text: line[1:]}
		case line[0] == '-':
			l = Line{Kind: Removal, Text: line[1:]}
		default:
			return Hunk{}, 0, countMismatch(h, oldSeen, newSeen, start)
		}

		if l.Kind != Addition {
			oldSeen++
		}
		if l.Kind != Removal {
			newSeen++
		}
		if oldSeen > h.OldCount || newSeen > h.NewCount {
			return Hunk{}, 0, countMismatch(h, oldSeen, newSeen, start)
		}
		h.Lines = append(h.Lines, l)
		last = l.Kind
		j++
	}

	if oldSeen != h.OldCount || newSeen != h.NewCount {
		return Hunk{}, 0, countMismatch(h, oldSeen, newSeen, start)
	}
	return h, j, nil
}

func countMismatch(h Hunk, oldSeen, newSeen, start int) error {
	return errors.Errorf("%w: hunk at line %d declares -%d,%d +%d,%d but body has %d old and %d new lines",
		ErrMalformed, start+1, h.OldStart, h.OldCount, h.NewStart, h.NewCount, oldSeen, newSeen)
}

// headerNumber parses a hunk header field. An omitted count means 1.
func headerNumber(s string) (int, error) {
	if s == "" {
		return 1, nil
	}
	return strconv.Atoi(s)
}
