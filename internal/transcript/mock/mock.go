// Package mock provides an in-memory test double for transcript.Store.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/resonate/internal/transcript"
)

// Compile-time interface check.
var _ transcript.Store = (*Store)(nil)

// Store records entries in memory. Tests configure the error fields and
// inspect the recorded entries.
type Store struct {
	mu sync.Mutex

	// RecordErr, if non-nil, is returned by every Record call.
	RecordErr error

	// RecentErr, if non-nil, is returned by every Recent call.
	RecentErr error

	entries []transcript.Entry
	closed  bool
}

// Record implements transcript.Store.
func (s *Store) Record(_ context.Context, entry transcript.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return s.RecordErr
	}
	s.entries = append(s.entries, entry)
	return nil
}

// Recent implements transcript.Store.
func (s *Store) Recent(_ context.Context, sessionID string, limit int) ([]transcript.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}

	var matched []transcript.Entry
	for _, e := range s.entries {
		if e.SessionID == sessionID {
			matched = append(matched, e)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// Close implements transcript.Store.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Entries returns a copy of everything recorded so far.
func (s *Store) Entries() []transcript.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transcript.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
