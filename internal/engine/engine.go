// Package engine defines the Engine interface implemented by the two
// conversation strategies.
//
// An Engine is responsible for the core conversational loop of a single voice
// session: it receives audio chunks from the client and emits the events that
// make up the session's response stream — user transcriptions, incremental
// text, audio, and turn boundaries. The broker converts those events into
// outbound client messages without knowing which strategy produced them.
//
// Two implementations exist: the native strategy (internal/engine/native)
// streams audio through a speech-to-speech realtime provider, and the cascade
// strategy (internal/engine/cascade) runs a per-utterance STT → LLM → TTS
// pipeline.
//
// This package lives under internal/ because it encapsulates
// application-private processing logic and is not intended to be imported by
// external code.
package engine

import (
	"context"

	"github.com/MrWong99/resonate/pkg/audio"
)

// Mode selects the cost/quality tradeoff for a conversation. Each strategy
// maps the mode to its own pair of upstream models.
type Mode string

const (
	// ModeCheap favours latency and cost over response quality.
	ModeCheap Mode = "cheap"

	// ModeComplex favours response quality over latency and cost.
	ModeComplex Mode = "complex"
)

// Config is the per-session configuration handed to an engine at creation.
// The broker validates and clamps all fields before constructing an engine,
// so implementations may trust the values.
type Config struct {
	// SessionID identifies the session owning this engine.
	SessionID string

	// Mode selects the upstream model pair. See [Mode].
	Mode Mode

	// Voice selects the synthesised output voice (e.g. "alloy").
	Voice string

	// Speed is the speech rate multiplier in [0.25, 4.0].
	Speed float64

	// Instructions is the system preamble for the conversation. An empty
	// value selects the strategy's default.
	Instructions string

	// MaxResponseTokens caps the length of generated responses. Zero means
	// the strategy's mode-derived default.
	MaxResponseTokens int
}

// EventType discriminates the events an engine emits.
type EventType string

const (
	// EventTranscription carries the completed transcript of a user
	// utterance (Text field, Role "user").
	EventTranscription EventType = "transcription"

	// EventTextDelta carries an incremental fragment of the assistant's
	// textual response (Text field).
	EventTextDelta EventType = "text_delta"

	// EventAudioDelta carries an incremental fragment of the assistant's
	// spoken response (Audio field). Emitted by the native strategy.
	EventAudioDelta EventType = "audio_delta"

	// EventAudioResponse carries the assistant's complete spoken response as
	// a single encoded clip (Audio and AudioFormat fields). Emitted by the
	// cascade strategy.
	EventAudioResponse EventType = "audio_response"

	// EventResponseDone marks the end of an assistant response turn.
	EventResponseDone EventType = "response_done"

	// EventError carries a pipeline error (Err field). Fatal reports whether
	// the engine is unusable afterwards; non-fatal errors abort only the
	// current turn.
	EventError EventType = "error"
)

// Event is a single occurrence in an engine's response stream.
type Event struct {
	Type EventType

	// Role is "user" for transcriptions and "assistant" for response events.
	Role string

	// Text is set for transcriptions and text deltas.
	Text string

	// Audio is set for audio deltas and audio responses.
	Audio []byte

	// AudioFormat names the encoding of Audio ("pcm16", "mp3").
	AudioFormat string

	// Err is set for error events.
	Err error

	// Fatal reports whether the error terminated the engine.
	Fatal bool
}

// Emit is the callback through which an engine delivers events to its owner.
// Implementations must tolerate being called from multiple goroutines.
type Emit func(Event)

// Engine handles the complete speech-in / response-out loop for one session.
//
// A single Engine instance is owned by one session; sessions must not share
// engines. All methods must be safe for concurrent use. Callers must call
// Close when the session ends.
type Engine interface {
	// Name identifies the strategy ("native" or "cascade") for logs, status
	// messages, and metrics.
	Name() string

	// Realtime reports whether the engine streams responses incrementally as
	// audio deltas rather than returning complete clips per turn.
	Realtime() bool

	// Start prepares the engine and registers emit as the sink for all
	// subsequent events. It must be called exactly once, before the first
	// ProcessChunk. A returned error means the engine could not be brought
	// up and must not be used.
	Start(ctx context.Context, emit Emit) error

	// ProcessChunk feeds one client audio clip into the pipeline. Turn-local
	// failures are reported through emit as non-fatal [EventError] events; a
	// returned error means the engine can no longer process audio.
	ProcessChunk(ctx context.Context, clip audio.Clip) error

	// Close releases all resources held by the engine. It is safe to call
	// multiple times; subsequent calls return nil.
	Close() error
}

// Factory constructs a fresh engine for a new session. The broker calls the
// factory once per Create; binding providers and stores into the closure is
// the caller's responsibility.
type Factory func(cfg Config) (Engine, error)
