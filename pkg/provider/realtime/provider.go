// Package realtime defines the Provider interface for speech-to-speech
// realtime backends.
//
// A realtime provider wraps a bidirectional voice AI service that accepts
// raw audio input and returns synthesised audio output in a single, stateful
// session, bypassing the separate STT → LLM → TTS pipeline entirely. The
// central abstraction is SessionHandle: a multiplexed channel that carries
// audio deltas, transcripts, turn boundaries, and errors concurrently.
//
// All implementations must be safe for concurrent use.
package realtime

import "context"

// TurnDetection configures the provider's server-side voice activity
// detection.
type TurnDetection struct {
	// Threshold is the VAD activation threshold in [0.0, 1.0].
	Threshold float64

	// PrefixPaddingMs is the amount of audio included before detected speech.
	PrefixPaddingMs int

	// SilenceDurationMs is the trailing silence that ends a turn.
	SilenceDurationMs int

	// CreateResponse makes the model answer automatically at end of turn.
	CreateResponse bool

	// InterruptResponse cancels an in-flight response when the user starts
	// speaking again (barge-in).
	InterruptResponse bool
}

// DefaultTurnDetection returns the turn detection parameters tuned for
// conversational speech.
func DefaultTurnDetection() TurnDetection {
	return TurnDetection{
		Threshold:         0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 700,
		CreateResponse:    true,
		InterruptResponse: true,
	}
}

// SessionConfig is the initial configuration for a new realtime session.
type SessionConfig struct {
	// Model selects the upstream model. An empty value uses the provider
	// default.
	Model string

	// Voice selects the synthesised output voice (e.g. "alloy").
	Voice string

	// Instructions is the system-level prompt for the session.
	Instructions string

	// MaxResponseTokens caps the tokens generated per response. Zero means
	// the provider default.
	MaxResponseTokens int

	// TurnDetection configures server-side VAD. The zero value disables the
	// turn_detection block; use [DefaultTurnDetection] for sane defaults.
	TurnDetection TurnDetection
}

// EventType discriminates the events emitted by a session.
type EventType string

const (
	// EventSessionReady signals that the upstream acknowledged the session
	// configuration and is accepting audio.
	EventSessionReady EventType = "session_ready"

	// EventSpeechStarted and EventSpeechStopped mark server-side VAD turn
	// boundaries in the inbound audio.
	EventSpeechStarted EventType = "speech_started"
	EventSpeechStopped EventType = "speech_stopped"

	// EventTextDelta carries an incremental fragment of the model's textual
	// response (Text field).
	EventTextDelta EventType = "text_delta"

	// EventAudioDelta carries a decoded PCM16 fragment of the model's spoken
	// response (Audio field).
	EventAudioDelta EventType = "audio_delta"

	// EventInputTranscription carries the completed transcript of a user
	// utterance as recognised by the model (Text field).
	EventInputTranscription EventType = "input_transcription"

	// EventResponseDone marks the end of a model response turn.
	EventResponseDone EventType = "response_done"

	// EventError carries a provider error (Err field). Fatal reports whether
	// the session is unusable afterwards.
	EventError EventType = "error"
)

// Event is a single occurrence in a realtime session.
type Event struct {
	Type EventType

	// Text is set for text deltas and transcriptions.
	Text string

	// Audio is set for audio deltas: raw little-endian PCM16.
	Audio []byte

	// Err is set for error events.
	Err error

	// Fatal reports whether the error terminated the session. The Events
	// channel closes after a fatal error.
	Fatal bool
}

// SessionHandle represents an open realtime session. It is an interface so
// that test code can supply mock implementations without a live provider
// connection.
//
// The session is the hot path of the voice pipeline; every method must
// return quickly. All methods must be safe for concurrent use. Callers must
// call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a raw PCM16 audio chunk to the model. The chunk must
	// match the audio format negotiated when the session was opened. Returns
	// an error if the session is closed or the transport write fails.
	SendAudio(chunk []byte) error

	// Interrupt signals the provider to stop generating the current response
	// and discard buffered audio (barge-in).
	Interrupt() error

	// Events returns a read-only channel that emits session events in the
	// order they arrive from the provider. The channel is closed when the
	// session ends; check [SessionHandle.Err] afterwards to distinguish a
	// clean close from a transport failure. Consumers must drain the channel
	// promptly to avoid stalling the provider's receive loop.
	Events() <-chan Event

	// Err returns the error that caused the Events channel to close
	// prematurely, or nil if the session ended cleanly.
	Err() error

	// Close terminates the session and releases all resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any realtime speech backend.
//
// Implementations must be safe for concurrent use; the broker opens one
// session per connected client.
type Provider interface {
	// Connect establishes a new realtime session with the given
	// configuration. The returned SessionHandle accepts audio immediately;
	// [EventSessionReady] is emitted once the upstream acknowledges the
	// configuration. The caller owns the SessionHandle and must call Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
