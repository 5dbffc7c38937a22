// Package broker manages the lifecycle of voice conversation sessions.
//
// The broker sits between the transport layer and the conversation engines:
// the registry creates, looks up, and stops sessions (at most one per
// client), each session runs a bounded audio queue drained by a pump
// goroutine, and engine events are converted into the uniform outbound
// message shape delivered through a [Sink].
package broker

import (
	"encoding/base64"
	"errors"

	"github.com/MrWong99/resonate/internal/engine"
)

// Outbound message types.
const (
	// TypeStatus carries a session lifecycle notification (Status field).
	TypeStatus = "status"

	// TypeTranscription carries the recognised text of a user utterance.
	TypeTranscription = "transcription"

	// TypeTextDelta carries an incremental fragment of the assistant's text.
	TypeTextDelta = "text_delta"

	// TypeAudioDelta carries an incremental fragment of assistant audio.
	TypeAudioDelta = "audio_delta"

	// TypeAudioResponse carries a complete assistant audio clip.
	TypeAudioResponse = "audio_response"

	// TypeResponseDone marks the end of an assistant response turn.
	TypeResponseDone = "response_done"

	// TypeError carries a pipeline or session error.
	TypeError = "error"
)

// Status values carried by TypeStatus messages.
const (
	// StatusStarting is sent while the session's engine is being brought up.
	StatusStarting = "starting"

	// StatusStarted is sent once the session accepts audio. Content names
	// the active strategy.
	StatusStarted = "started"

	// StatusProcessing is sent when an utterance has been accepted by a
	// non-realtime session and a response is being generated.
	StatusProcessing = "processing"

	// StatusStopped is sent when the session has shut down.
	StatusStopped = "stopped"

	// StatusNoSession is sent in reply to operations on an unknown session.
	StatusNoSession = "no_session"
)

// Message is the uniform outbound shape delivered to clients. Every event a
// session produces, regardless of strategy, is normalised into this form.
type Message struct {
	// Role is "user" for transcriptions, "assistant" for response content,
	// and "system" for status and error messages.
	Role string `json:"role"`

	// Content is the textual payload: transcript text, response fragments,
	// or a human-readable error.
	Content string `json:"content"`

	// Type discriminates the message. See the Type constants.
	Type string `json:"type"`

	// Status is set on TypeStatus messages. See the Status constants.
	Status string `json:"status,omitempty"`

	// AudioData is the base64-encoded audio payload of TypeAudioDelta and
	// TypeAudioResponse messages.
	AudioData string `json:"audio_data,omitempty"`

	// AudioFormat names the encoding of AudioData ("pcm16", "mp3").
	AudioFormat string `json:"audio_format,omitempty"`

	// SessionID identifies the session the message belongs to.
	SessionID string `json:"session_id,omitempty"`

	// IsRealtime reports whether the session streams responses
	// incrementally.
	IsRealtime bool `json:"is_realtime"`
}

// Sink delivers outbound messages to one client connection. Implementations
// must be safe for concurrent use; sessions send from multiple goroutines.
type Sink interface {
	Send(msg Message) error
}

// Sentinel errors returned by registry and session operations.
var (
	// ErrSessionNotFound is returned when the target session does not exist
	// or has already stopped.
	ErrSessionNotFound = errors.New("broker: session not found")

	// ErrQueueFull is returned by Submit when the session's audio queue is
	// at capacity. The offered chunk is dropped; queued chunks keep their
	// order.
	ErrQueueFull = errors.New("broker: session queue full")
)

// Speed bounds for synthesised speech.
const (
	minSpeed     = 0.25
	maxSpeed     = 4.0
	defaultSpeed = 1.0
)

// defaultVoice is used when the client does not request one.
const defaultVoice = "alloy"

// Options carries the client's per-session preferences.
type Options struct {
	// Mode selects the cost/quality tradeoff. Unknown values fall back to
	// cheap.
	Mode engine.Mode

	// Voice selects the synthesised output voice. Empty means "alloy".
	Voice string

	// Speed is the speech rate multiplier, clamped to [0.25, 4.0]. Zero
	// means 1.0.
	Speed float64

	// Instructions overrides the default system preamble.
	Instructions string

	// MaxResponseTokens overrides the mode-derived response length cap.
	// Zero or negative means the default.
	MaxResponseTokens int
}

// normalize fills defaults and clamps out-of-range values in place.
func (o *Options) normalize() {
	if o.Mode != engine.ModeComplex {
		o.Mode = engine.ModeCheap
	}
	if o.Voice == "" {
		o.Voice = defaultVoice
	}
	switch {
	case o.Speed == 0:
		o.Speed = defaultSpeed
	case o.Speed < minSpeed:
		o.Speed = minSpeed
	case o.Speed > maxSpeed:
		o.Speed = maxSpeed
	}
	if o.MaxResponseTokens < 0 {
		o.MaxResponseTokens = 0
	}
}

// messageFromEvent converts an engine event into the outbound shape.
func messageFromEvent(evt engine.Event, sessionID string, isRealtime bool) Message {
	msg := Message{
		Role:       evt.Role,
		SessionID:  sessionID,
		IsRealtime: isRealtime,
	}

	switch evt.Type {
	case engine.EventTranscription:
		msg.Type = TypeTranscription
		msg.Content = evt.Text

	case engine.EventTextDelta:
		msg.Type = TypeTextDelta
		msg.Content = evt.Text

	case engine.EventAudioDelta:
		msg.Type = TypeAudioDelta
		msg.AudioData = base64.StdEncoding.EncodeToString(evt.Audio)
		msg.AudioFormat = evt.AudioFormat

	case engine.EventAudioResponse:
		msg.Type = TypeAudioResponse
		msg.AudioData = base64.StdEncoding.EncodeToString(evt.Audio)
		msg.AudioFormat = evt.AudioFormat

	case engine.EventResponseDone:
		msg.Type = TypeResponseDone

	case engine.EventError:
		msg.Type = TypeError
		msg.Role = "system"
		if evt.Err != nil {
			msg.Content = evt.Err.Error()
		}
	}

	return msg
}
