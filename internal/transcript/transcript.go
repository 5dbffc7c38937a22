// Package transcript archives completed conversation turns.
//
// Archival is strictly best-effort: sessions keep running when the archive is
// unavailable, and writes happen off the audio path. The in-memory
// conversation history a session prompts with lives elsewhere; this package
// is the durable record.
package transcript

import (
	"context"
	"time"
)

// Entry is one archived utterance, either side of the conversation.
type Entry struct {
	// SessionID identifies the voice session the utterance belongs to.
	SessionID string

	// ClientID identifies the client connection that owned the session.
	ClientID string

	// Role is "user" or "assistant".
	Role string

	// Content is the utterance text.
	Content string

	// Strategy names the conversation strategy that produced the entry.
	Strategy string

	// CreatedAt is when the utterance completed. Zero means now.
	CreatedAt time.Time
}

// Store persists conversation entries. Implementations must be safe for
// concurrent use.
type Store interface {
	// Record appends one entry to the archive.
	Record(ctx context.Context, entry Entry) error

	// Recent returns up to limit entries for sessionID in chronological
	// order, oldest first.
	Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error)

	// Close releases the store's resources.
	Close()
}

// Compile-time interface check.
var _ Store = (*Noop)(nil)

// Noop is a Store that discards everything. Used when no archive is
// configured.
type Noop struct{}

// Record implements [Store].
func (Noop) Record(context.Context, Entry) error { return nil }

// Recent implements [Store].
func (Noop) Recent(context.Context, string, int) ([]Entry, error) { return nil, nil }

// Close implements [Store].
func (Noop) Close() {}
