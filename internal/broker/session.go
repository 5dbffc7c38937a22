package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/resonate/internal/engine"
	"github.com/MrWong99/resonate/internal/observe"
	"github.com/MrWong99/resonate/internal/transcript"
	"github.com/MrWong99/resonate/pkg/audio"
)

// State is the lifecycle phase of a session.
type State int32

const (
	// StateCreated is the initial state before start is called.
	StateCreated State = iota

	// StateConnecting covers engine bring-up; audio is already accepted.
	StateConnecting

	// StateActive is the normal operating state.
	StateActive

	// StateDraining covers shutdown: no new audio is accepted while the
	// pump and engine wind down.
	StateDraining

	// StateClosed is terminal.
	StateClosed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one live voice conversation. It owns a bounded FIFO queue of
// audio chunks drained by a single pump goroutine, guaranteeing that chunks
// reach the engine in submission order.
//
// All methods are safe for concurrent use.
type Session struct {
	id       string
	clientID string
	opts     Options
	eng      engine.Engine
	sink     Sink
	archive  transcript.Store
	metrics  *observe.Metrics
	log      *slog.Logger

	queue chan audio.Clip
	done  chan struct{}

	state        atomic.Int32
	lastActivity atomic.Int64 // unix nanoseconds

	// respText accumulates assistant text deltas until the turn completes.
	respMu   sync.Mutex
	respText []string

	wg        sync.WaitGroup
	archiveWG sync.WaitGroup
	stopOnce  sync.Once
}

func newSession(id, clientID string, opts Options, eng engine.Engine, sink Sink, archive transcript.Store, queueSize int, metrics *observe.Metrics, log *slog.Logger) *Session {
	s := &Session{
		id:       id,
		clientID: clientID,
		opts:     opts,
		eng:      eng,
		sink:     sink,
		archive:  archive,
		metrics:  metrics,
		log:      log.With("session_id", id, "client_id", clientID, "strategy", eng.Name()),
		queue:    make(chan audio.Clip, queueSize),
		done:     make(chan struct{}),
	}
	s.touch()
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// ClientID returns the identifier of the owning client connection.
func (s *Session) ClientID() string { return s.clientID }

// Strategy returns the name of the session's conversation strategy.
func (s *Session) Strategy() string { return s.eng.Name() }

// Realtime reports whether the session streams responses incrementally.
func (s *Session) Realtime() bool { return s.eng.Realtime() }

// State returns the session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// LastActivity returns the time of the most recently submitted chunk, or the
// creation time if none has arrived yet.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// start brings up the engine and launches the pump goroutine. It is called
// exactly once, by the registry.
func (s *Session) start(ctx context.Context) error {
	s.setState(StateConnecting)
	s.send(Message{Role: "system", Type: TypeStatus, Status: StatusStarting, SessionID: s.id, IsRealtime: s.eng.Realtime()})

	if err := s.eng.Start(ctx, s.handleEvent); err != nil {
		s.setState(StateClosed)
		s.send(Message{Role: "system", Type: TypeError, Content: err.Error(), SessionID: s.id})
		return fmt.Errorf("broker: start engine: %w", err)
	}

	s.setState(StateActive)
	s.send(Message{
		Role:       "system",
		Type:       TypeStatus,
		Status:     StatusStarted,
		Content:    s.eng.Name(),
		SessionID:  s.id,
		IsRealtime: s.eng.Realtime(),
	})

	s.metrics.ActiveSessions.Add(ctx, 1)
	s.log.Info("session started", "mode", string(s.opts.Mode), "voice", s.opts.Voice)

	s.wg.Add(1)
	go s.pump()

	return nil
}

// Submit offers one audio clip to the session queue. When the queue is full
// the offered chunk is dropped and [ErrQueueFull] is returned; chunks already
// queued keep their order.
func (s *Session) Submit(clip audio.Clip) error {
	switch s.State() {
	case StateConnecting, StateActive:
	default:
		return ErrSessionNotFound
	}

	s.touch()

	select {
	case s.queue <- clip:
	default:
		s.metrics.ChunksDropped.Add(context.Background(), 1)
		s.log.Warn("audio chunk dropped", "queue_size", cap(s.queue))
		return ErrQueueFull
	}

	s.metrics.ChunksReceived.Add(context.Background(), 1)
	if !s.eng.Realtime() {
		s.send(Message{Role: "system", Type: TypeStatus, Status: StatusProcessing, SessionID: s.id})
	}
	return nil
}

// pump drains the queue into the engine, one chunk at a time, preserving
// submission order.
func (s *Session) pump() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case clip := <-s.queue:
			if err := s.eng.ProcessChunk(context.Background(), clip); err != nil {
				// The engine refuses further audio; the session is over.
				s.log.Error("engine rejected audio", "err", err)
				s.send(Message{Role: "system", Type: TypeError, Content: err.Error(), SessionID: s.id})
				go s.stop()
				return
			}
		}
	}
}

// handleEvent converts engine events into outbound messages. Fatal errors
// trigger an asynchronous self-stop.
func (s *Session) handleEvent(evt engine.Event) {
	s.send(messageFromEvent(evt, s.id, s.eng.Realtime()))

	switch evt.Type {
	case engine.EventTranscription:
		s.record("user", evt.Text)

	case engine.EventTextDelta:
		s.respMu.Lock()
		s.respText = append(s.respText, evt.Text)
		s.respMu.Unlock()

	case engine.EventResponseDone:
		s.respMu.Lock()
		text := strings.Join(s.respText, "")
		s.respText = s.respText[:0]
		s.respMu.Unlock()
		s.record("assistant", text)

	case engine.EventError:
		if evt.Fatal {
			s.log.Error("fatal engine error", "err", evt.Err)
			go s.stop()
		}
	}
}

// record archives one completed utterance. Archival is best-effort and runs
// off the event path; failures are logged and otherwise ignored.
func (s *Session) record(role, text string) {
	if text == "" {
		return
	}
	s.archiveWG.Add(1)
	go func() {
		defer s.archiveWG.Done()
		entry := transcript.Entry{
			SessionID: s.id,
			ClientID:  s.clientID,
			Role:      role,
			Content:   text,
			Strategy:  s.eng.Name(),
			CreatedAt: time.Now(),
		}
		if err := s.archive.Record(context.Background(), entry); err != nil {
			s.log.Warn("transcript archival failed", "role", role, "err", err)
		}
	}()
}

// send delivers a message through the sink, logging delivery failures.
func (s *Session) send(msg Message) {
	if err := s.sink.Send(msg); err != nil {
		s.log.Warn("failed to deliver message", "type", msg.Type, "err", err)
	}
}

// stop shuts the session down: it stops accepting audio, waits for the pump
// to finish the in-flight chunk, closes the engine, and notifies the client.
// Safe to call from any goroutine; only the first call acts.
func (s *Session) stop() {
	s.stopOnce.Do(func() {
		s.setState(StateDraining)
		close(s.done)
		s.wg.Wait()

		if err := s.eng.Close(); err != nil {
			s.log.Warn("engine close failed", "err", err)
		}
		// Engines emit no further events once closed, so any archive
		// writes in flight are the last ones.
		s.archiveWG.Wait()

		s.setState(StateClosed)
		s.send(Message{Role: "system", Type: TypeStatus, Status: StatusStopped, SessionID: s.id, IsRealtime: s.eng.Realtime()})
		s.metrics.ActiveSessions.Add(context.Background(), -1)
		s.log.Info("session stopped")
	})
}
