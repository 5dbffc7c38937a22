// Package mock provides test doubles for the realtime.Provider and
// realtime.SessionHandle interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/resonate/pkg/provider/realtime"
)

// Compile-time assertions.
var _ realtime.Provider = (*Provider)(nil)
var _ realtime.SessionHandle = (*Session)(nil)

// Session is a scripted realtime.SessionHandle. Tests feed events through
// Emit and inspect the audio the code under test sent.
type Session struct {
	mu sync.Mutex

	// SendErr, if non-nil, is returned by every SendAudio call.
	SendErr error

	// ErrVal is returned by Err.
	ErrVal error

	// Sent records every chunk passed to SendAudio in order.
	Sent [][]byte

	// Interrupts counts Interrupt calls.
	Interrupts int

	// Closed counts Close calls.
	Closed int

	events    chan realtime.Event
	closeOnce sync.Once
}

// NewSession creates a Session with a buffered event channel.
func NewSession() *Session {
	return &Session{events: make(chan realtime.Event, 64)}
}

// Emit delivers an event to the session's Events channel.
func (s *Session) Emit(evt realtime.Event) { s.events <- evt }

// Finish closes the Events channel, simulating session end. Idempotent.
func (s *Session) Finish() {
	s.closeOnce.Do(func() { close(s.events) })
}

// SendAudio implements realtime.SessionHandle.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.Sent = append(s.Sent, buf)
	return nil
}

// Interrupt implements realtime.SessionHandle.
func (s *Session) Interrupt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Interrupts++
	return nil
}

// Events implements realtime.SessionHandle.
func (s *Session) Events() <-chan realtime.Event { return s.events }

// Err implements realtime.SessionHandle.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

// Close implements realtime.SessionHandle. It also closes the Events
// channel so consumers unblock.
func (s *Session) Close() error {
	s.mu.Lock()
	s.Closed++
	s.mu.Unlock()
	s.Finish()
	return nil
}

// SentChunks returns a copy of the recorded audio chunks.
func (s *Session) SentChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.Sent))
	copy(out, s.Sent)
	return out
}

// Provider is a mock implementation of realtime.Provider returning a
// pre-built Session.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. When nil, a fresh Session is created
	// per call and recorded in Sessions.
	Session *Session

	// ConnectErr, if non-nil, is returned by Connect.
	ConnectErr error

	// Configs records every SessionConfig passed to Connect.
	Configs []realtime.SessionConfig

	// Sessions records every session handed out by Connect.
	Sessions []*Session
}

// Connect implements realtime.Provider.
func (p *Provider) Connect(_ context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Configs = append(p.Configs, cfg)
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}

	sess := p.Session
	if sess == nil {
		sess = NewSession()
	}
	p.Sessions = append(p.Sessions, sess)
	return sess, nil
}
