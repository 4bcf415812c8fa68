package model

// BlockType classifies the payload of a ParsedBlock.
type BlockType int

const (
	// FullContent blocks replace the whole target file.
	FullContent BlockType = iota
	// UnifiedDiff blocks carry a unified diff applied against the target file.
	UnifiedDiff
)

func (t BlockType) String() string {
	switch t {
	case FullContent:
		return "full"
	case UnifiedDiff:
		return "diff"
	default:
		return "unknown"
	}
}

// ParsedBlock represents a single per-file change found in pasted text.
type ParsedBlock struct {
	// Filename is relative to the base directory, uses forward slashes and
	// never starts with "./".
	Filename string
	// Content is the full file body, or the diff text including its headers.
	Content string
	Type    BlockType
}

// ErrorKind tags why a block could not be extracted or applied.
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindParse         ErrorKind = "ParseError"
	KindDiffParse     ErrorKind = "DiffParseError"
	KindFileNotFound  ErrorKind = "FileNotFound"
	KindPatchConflict ErrorKind = "PatchConflict"
	KindIO            ErrorKind = "IoError"
)

// Action describes what happened to a target file.
type Action string

const (
	ActionCreated   Action = "created"
	ActionModified  Action = "modified"
	ActionUnchanged Action = "unchanged"
)

// BlockResult is the outcome of applying one block.
type BlockResult struct {
	// Index is the position of the block in the extracted sequence.
	Index    int
	Filename string
	Type     BlockType
	Action   Action
	Kind     ErrorKind
	Err      error
}

// OK reports whether the block was applied.
func (r BlockResult) OK() bool {
	return r.Err == nil
}

// Summary holds the results of one batch for display.
type Summary struct {
	Results   []BlockResult
	Created   []string
	Modified  []string
	Unchanged []string
	Failed    []string
	// Skipped counts blocks dropped during extraction.
	Skipped int
	Message string
}

// Applied returns the number of blocks applied without error.
func (s Summary) Applied() int {
	n := 0
	for _, r := range s.Results {
		if r.OK() {
			n++
		}
	}
	return n
}

// FailedCount returns the number of blocks that failed to apply.
func (s Summary) FailedCount() int {
	return len(s.Results) - s.Applied()
}

// FailuresByKind counts failed blocks per error kind.
func (s Summary) FailuresByKind() map[ErrorKind]int {
	counts := make(map[ErrorKind]int)
	for _, r := range s.Results {
		if !r.OK() {
			counts[r.Kind]++
		}
	}
	return counts
}

// NewSummary builds a Summary from ordered block results, filling the
// per-action path lists.
func NewSummary(results []BlockResult, skipped int) Summary {
	s := Summary{Results: results, Skipped: skipped}
	for _, r := range results {
		if !r.OK() {
			s.Failed = append(s.Failed, r.Filename)
			continue
		}
		switch r.Action {
		case ActionCreated:
			s.Created = append(s.Created, r.Filename)
		case ActionModified:
			s.Modified = append(s.Modified, r.Filename)
		default:
			s.Unchanged = append(s.Unchanged, r.Filename)
		}
	}
	return s
}
