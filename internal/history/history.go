// Package history provides the per-session conversation context store for
// the cascade strategy. Each session carries a pinned system preamble plus a
// sliding window of the most recent user/assistant turns, so LLM prompts stay
// bounded no matter how long a conversation runs.
package history

import (
	"sync"
)

// DefaultPreamble is the system prompt installed for new sessions unless the
// caller supplies its own.
const DefaultPreamble = "You are a helpful assistant in a real-time voice conversation. " +
	"Keep responses natural and conversational. Remember previous exchanges to maintain context. " +
	"This is a continuous conversation where the user can speak multiple times."

// maxEntries is the number of non-system entries retained per session.
const maxEntries = 10

// Entry is a single conversation message.
type Entry struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Store holds conversation histories keyed by session ID.
// All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string][]Entry
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string][]Entry)}
}

// Open initialises the history for sessionID with a system preamble. An empty
// preamble selects [DefaultPreamble]. Opening an already-open session resets
// its history.
func (s *Store) Open(sessionID, preamble string) {
	if preamble == "" {
		preamble = DefaultPreamble
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = []Entry{{Role: "system", Content: preamble}}
}

// Append adds an entry to the session's history and trims the window: the
// system preamble is never evicted, and at most the last [maxEntries]
// non-system entries are retained. Appending to an unknown session opens it
// with the default preamble first.
func (s *Store) Append(sessionID string, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.sessions[sessionID]
	if !ok {
		entries = []Entry{{Role: "system", Content: DefaultPreamble}}
	}
	entries = append(entries, entry)

	if len(entries) > 1+maxEntries {
		trimmed := make([]Entry, 0, 1+maxEntries)
		trimmed = append(trimmed, entries[0])
		trimmed = append(trimmed, entries[len(entries)-maxEntries:]...)
		entries = trimmed
	}
	s.sessions[sessionID] = entries
}

// Snapshot returns a defensive copy of the session's history, suitable for
// building an LLM request while other goroutines keep appending. Unknown
// sessions yield nil.
func (s *Store) Snapshot(sessionID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Drop removes the session's history entirely. Dropping an unknown session is
// a no-op.
func (s *Store) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len reports the number of entries currently stored for sessionID,
// including the system preamble.
func (s *Store) Len(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[sessionID])
}
