package rules

import "sync/atomic"

// Store publishes an immutable rule snapshot to concurrent readers.
// Requests read whichever snapshot was current when they started;
// Replace swaps in a new snapshot atomically so an in-flight request
// never observes a partially updated rule set.
type Store struct {
	snapshot atomic.Pointer[[]Rule]
}

// NewStore creates a store holding the given rules as its first snapshot.
func NewStore(rules []Rule) *Store {
	s := &Store{}
	s.Replace(rules)
	return s
}

// Snapshot returns the current rule set. The returned slice must be
// treated as read-only.
func (s *Store) Snapshot() []Rule {
	return *s.snapshot.Load()
}

// Replace atomically swaps in a new rule set. The slice is copied so
// later mutation by the caller cannot leak into readers.
func (s *Store) Replace(rules []Rule) {
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	s.snapshot.Store(&cp)
}

// Len reports the number of rules in the current snapshot.
func (s *Store) Len() int {
	return len(s.Snapshot())
}
