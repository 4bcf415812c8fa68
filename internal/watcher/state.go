package watcher

import "github.com/cespare/xxhash/v2"

// State remembers the digest of the last text the watcher saw.
type State struct {
	digest uint64
	seen   bool
}

// Observe records text and reports whether it differs from the previous
// observation. The first observation always counts as a change.
func (s *State) Observe(text string) bool {
	d := xxhash.Sum64String(text)
	if s.seen && s.digest == d {
		return false
	}
	s.digest = d
	s.seen = true
	return true
}

// Reset forgets the last observation.
func (s *State) Reset() {
	*s = State{}
}
