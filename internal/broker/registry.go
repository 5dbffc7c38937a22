package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/resonate/internal/engine"
	"github.com/MrWong99/resonate/internal/observe"
	"github.com/MrWong99/resonate/internal/transcript"
	"github.com/MrWong99/resonate/pkg/audio"
)

const (
	// defaultQueueSize bounds each session's audio queue.
	defaultQueueSize = 64

	// defaultGrace is how long a stopped session stays resolvable by ID.
	// Clients often have one last message in flight when they stop; the
	// grace window lets those resolve to the stopped session instead of
	// producing a spurious not-found.
	defaultGrace = 500 * time.Millisecond
)

// RegistryOption is a functional option for configuring a Registry.
type RegistryOption func(*Registry)

// WithQueueSize sets the per-session audio queue capacity. Values below one
// are ignored.
func WithQueueSize(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithGrace sets how long stopped sessions stay resolvable before removal.
func WithGrace(d time.Duration) RegistryOption {
	return func(r *Registry) { r.grace = d }
}

// WithMetrics overrides the metrics instance. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger used by the registry and its sessions.
func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) { r.log = log }
}

// WithTranscripts sets the archive that completed utterances are recorded
// to. The default is [transcript.Noop].
func WithTranscripts(store transcript.Store) RegistryOption {
	return func(r *Registry) { r.archive = store }
}

// Registry tracks all live sessions and enforces the one-session-per-client
// rule: creating a session for a client that already has one stops the old
// session first.
type Registry struct {
	factory   engine.Factory
	queueSize int
	grace     time.Duration
	archive   transcript.Store
	metrics   *observe.Metrics
	log       *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session    // session ID -> session
	byClient map[string]string      // client ID -> session ID
	creating map[string]*clientLock // client ID -> in-flight Create lock
}

// clientLock serializes Create calls for one client. Refcounted so the entry
// can be dropped once the last waiter is done.
type clientLock struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry constructs a Registry that builds one engine per session
// through factory.
func NewRegistry(factory engine.Factory, opts ...RegistryOption) *Registry {
	r := &Registry{
		factory:   factory,
		queueSize: defaultQueueSize,
		grace:     defaultGrace,
		sessions:  make(map[string]*Session),
		byClient:  make(map[string]string),
		creating:  make(map[string]*clientLock),
	}
	for _, o := range opts {
		o(r)
	}
	if r.archive == nil {
		r.archive = transcript.Noop{}
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// Create starts a new session for clientID, replacing any session the client
// already owns. Status and response messages are delivered through sink.
func (r *Registry) Create(ctx context.Context, clientID string, sink Sink, opts Options) (*Session, error) {
	opts.normalize()

	// Replace, never stack: a client gets exactly one session. The whole
	// lookup-stop-install sequence holds the client's lock so concurrent
	// Creates for the same client serialize; otherwise both could miss the
	// other's session and leave an orphaned engine running.
	l := r.lockClient(clientID)
	defer r.unlockClient(clientID, l)

	r.mu.Lock()
	oldID, hadOld := r.byClient[clientID]
	r.mu.Unlock()
	if hadOld {
		r.log.Info("replacing existing session", "client_id", clientID, "old_session_id", oldID)
		if err := r.Stop(oldID); err != nil {
			return nil, fmt.Errorf("broker: replace session: %w", err)
		}
	}

	id := uuid.NewString()
	eng, err := r.factory(engine.Config{
		SessionID:         id,
		Mode:              opts.Mode,
		Voice:             opts.Voice,
		Speed:             opts.Speed,
		Instructions:      opts.Instructions,
		MaxResponseTokens: opts.MaxResponseTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("broker: build engine: %w", err)
	}

	s := newSession(id, clientID, opts, eng, sink, r.archive, r.queueSize, r.metrics, r.log)
	if err := s.start(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.byClient[clientID] = id
	r.mu.Unlock()

	return s, nil
}

// lockClient acquires the per-client Create lock, allocating it on first use.
func (r *Registry) lockClient(clientID string) *clientLock {
	r.mu.Lock()
	l, ok := r.creating[clientID]
	if !ok {
		l = &clientLock{}
		r.creating[clientID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return l
}

// unlockClient releases the per-client Create lock and drops the entry once
// nobody is waiting on it.
func (r *Registry) unlockClient(clientID string, l *clientLock) {
	l.mu.Unlock()

	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.creating, clientID)
	}
	r.mu.Unlock()
}

// Get returns the session with the given ID, if it is still registered.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Submit routes one audio clip to the session with the given ID.
func (r *Registry) Submit(id string, clip audio.Clip) error {
	s, ok := r.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return s.Submit(clip)
}

// Stop shuts down the session with the given ID. The session stays
// resolvable for a short grace window so in-flight client messages still
// find it. Stop is idempotent, and stopping an unknown session is a no-op;
// only Get and Submit distinguish missing sessions.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	s.stop()

	time.AfterFunc(r.grace, func() { r.remove(id) })
	return nil
}

// StopClient shuts down the session owned by clientID, if any.
func (r *Registry) StopClient(clientID string) error {
	r.mu.Lock()
	id, ok := r.byClient[clientID]
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return r.Stop(id)
}

// StopIdle stops every session whose last submitted audio is older than
// maxAge and returns how many were stopped.
func (r *Registry) StopIdle(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	var stale []string
	for id, s := range r.sessions {
		if s.State() == StateActive && s.LastActivity().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.log.Info("stopping idle session", "session_id", id)
		_ = r.Stop(id)
	}
	return len(stale)
}

// StopAll synchronously stops and removes every session. Used on shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.byClient = make(map[string]string)
	r.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
}

// Len returns the number of registered sessions, including those inside the
// post-stop grace window.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// remove drops a session from the lookup maps. The client mapping is only
// cleared if it still points at this session; a replacement session created
// during the grace window must keep its mapping.
func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	if r.byClient[s.clientID] == id {
		delete(r.byClient, s.clientID)
	}
}
