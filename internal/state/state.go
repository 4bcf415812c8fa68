package state

import (
	"bytes"
	"context"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/sokinpui/snippy.go/internal/applier"
	"github.com/sokinpui/snippy.go/internal/fs"
	"github.com/sokinpui/snippy.go/model"
)

const (
	StateDirName  = ".snippy"
	indexFileName = "history.yaml"
	blobDirName   = "history"
	DefaultLimit  = 20
)

var (
	// ErrNoHistory is returned by Undo when there is nothing to undo.
	ErrNoHistory = errors.Base("no operation to undo")
	// ErrModified is returned by Undo when a file changed after the batch
	// that is being undone.
	ErrModified = errors.Base("file modified since last operation")
)

// Operation records one file touched by a batch.
type Operation struct {
	Path   string       `yaml:"path"`
	Action model.Action `yaml:"action"`
	// BeforeHash is the SHA-256 of the pre-image; empty for created files.
	BeforeHash string `yaml:"before_hash,omitempty"`
	// AfterHash is the SHA-256 of the content the batch left behind.
	AfterHash string `yaml:"after_hash"`
	// Blob names the compressed pre-image, relative to the state directory.
	Blob string `yaml:"blob,omitempty"`
}

// HistoryEntry represents one applied batch.
type HistoryEntry struct {
	ID         string      `yaml:"id"`
	Timestamp  time.Time   `yaml:"timestamp"`
	Operations []Operation `yaml:"operations"`
}

// State represents the entire history index.
type State struct {
	Entries []HistoryEntry `yaml:"entries"`
}

// UndoResult describes what Undo did.
type UndoResult struct {
	Entry    HistoryEntry
	Restored []string
	Removed  []string
}

// Manager keeps the undo history of a workspace.
type Manager struct {
	ws    *fs.Workspace
	limit int

	mu  sync.Mutex
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New creates a Manager storing history under the workspace's state
// directory. At most limit entries are kept; limit <= 0 uses DefaultLimit.
func New(ws *fs.Workspace, limit int) (*Manager, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, errors.Errorf("creating encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, errors.Errorf("creating decoder: %w", err)
	}
	return &Manager{ws: ws, limit: limit, enc: enc, dec: dec}, nil
}

// Close releases the compression resources.
func (m *Manager) Close() {
	_ = m.enc.Close()
	m.dec.Close()
}

// Record stores the net effect of changes as a new history entry. Several
// changes to one file collapse into one operation from its first pre-image
// to its last post-image. It returns nil when nothing changed.
func (m *Manager) Record(ctx context.Context, changes []*applier.Change) (*HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type net struct {
		first, last *applier.Change
	}
	var order []string
	byPath := make(map[string]*net)
	for _, c := range changes {
		if c == nil {
			continue
		}
		n, ok := byPath[c.Filename]
		if !ok {
			n = &net{first: c}
			byPath[c.Filename] = n
			order = append(order, c.Filename)
		}
		n.last = c
	}

	entry := HistoryEntry{ID: uuid.NewString(), Timestamp: time.Now().UTC()}
	for i, p := range order {
		n := byPath[p]
		if n.first.Existed && bytes.Equal(n.first.Before, n.last.After) {
			continue
		}
		op := Operation{Path: p, Action: model.ActionCreated, AfterHash: fs.HashBytes(n.last.After)}
		if n.first.Existed {
			op.Action = model.ActionModified
			op.BeforeHash = fs.HashBytes(n.first.Before)
			op.Blob = path.Join(blobDirName, entry.ID, strconv.Itoa(i)+".zst")
			if err := m.ws.WriteFileAtomic(m.statePath(op.Blob), m.enc.EncodeAll(n.first.Before, nil)); err != nil {
				return nil, errors.Errorf("storing pre-image of %s: %w", p, err)
			}
		}
		entry.Operations = append(entry.Operations, op)
	}
	if len(entry.Operations) == 0 {
		return nil, nil
	}

	st, err := m.load()
	if err != nil {
		return nil, err
	}
	st.Entries = append(st.Entries, entry)
	for len(st.Entries) > m.limit {
		m.removeBlobs(ctx, st.Entries[0])
		st.Entries = st.Entries[1:]
	}
	if err := m.save(st); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().Str("id", entry.ID).Int("files", len(entry.Operations)).Msg("recorded history entry")
	return &entry, nil
}

// Entries returns the recorded history, oldest first.
func (m *Manager) Entries() ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.load()
	if err != nil {
		return nil, err
	}
	return st.Entries, nil
}

// Undo reverts the newest entry. Every file must still hold the content the
// entry left behind; otherwise nothing is touched and ErrModified is
// returned.
func (m *Manager) Undo(ctx context.Context) (*UndoResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.load()
	if err != nil {
		return nil, err
	}
	if len(st.Entries) == 0 {
		return nil, errors.WithStack(ErrNoHistory)
	}
	entry := st.Entries[len(st.Entries)-1]

	preimages := make(map[string][]byte)
	for _, op := range entry.Operations {
		hash, err := m.ws.HashFile(op.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, errors.WithDetails(ErrModified, "path", op.Path, "reason", "missing")
			}
			return nil, err
		}
		if hash != op.AfterHash {
			return nil, errors.WithDetails(ErrModified, "path", op.Path)
		}
		if op.Action == model.ActionModified {
			blob, err := m.ws.ReadFile(m.statePath(op.Blob))
			if err != nil {
				return nil, errors.Errorf("reading pre-image of %s: %w", op.Path, err)
			}
			before, err := m.dec.DecodeAll(blob, nil)
			if err != nil {
				return nil, errors.Errorf("decompressing pre-image of %s: %w", op.Path, err)
			}
			if fs.HashBytes(before) != op.BeforeHash {
				return nil, errors.Errorf("pre-image of %s is corrupt", op.Path)
			}
			preimages[op.Path] = before
		}
	}

	res := &UndoResult{Entry: entry}
	for _, op := range entry.Operations {
		if op.Action == model.ActionCreated {
			if err := m.ws.Remove(op.Path); err != nil {
				return res, err
			}
			res.Removed = append(res.Removed, op.Path)
			continue
		}
		if err := m.ws.WriteFileAtomic(op.Path, preimages[op.Path]); err != nil {
			return res, err
		}
		res.Restored = append(res.Restored, op.Path)
	}

	m.removeBlobs(ctx, entry)
	st.Entries = st.Entries[:len(st.Entries)-1]
	if err := m.save(st); err != nil {
		return res, err
	}
	return res, nil
}

func (m *Manager) statePath(name string) string {
	return path.Join(StateDirName, name)
}

func (m *Manager) load() (*State, error) {
	data, err := m.ws.ReadFile(m.statePath(indexFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &State{}, nil
		}
		return nil, err
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, errors.Errorf("invalid history index: %w", err)
	}
	return &st, nil
}

func (m *Manager) save(st *State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return errors.Errorf("encoding history index: %w", err)
	}
	return m.ws.WriteFileAtomic(m.statePath(indexFileName), data)
}

func (m *Manager) removeBlobs(ctx context.Context, entry HistoryEntry) {
	for _, op := range entry.Operations {
		if op.Blob == "" {
			continue
		}
		if err := m.ws.Remove(m.statePath(op.Blob)); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Str("blob", op.Blob).Msg("could not remove history blob")
		}
	}
}
