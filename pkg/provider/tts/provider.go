// Package tts defines the Provider interface for Text-to-Speech backends.
//
// The cascade conversation strategy synthesises the complete assistant reply
// once text streaming has finished, so providers expose a single Synthesize
// call over whole utterances rather than a streaming channel.
//
// Implementations must be safe for concurrent use; multiple sessions may
// synthesise simultaneously.
package tts

import "context"

// Request carries one reply to synthesise.
type Request struct {
	// Text is the complete text to speak.
	Text string

	// Voice is the provider-specific voice identifier (e.g. "alloy").
	// An empty value selects the provider default.
	Voice string

	// Speed adjusts the speaking rate. Providers accept the range
	// [0.25, 4.0]; zero means the provider default of 1.0.
	Speed float64

	// Format selects the output container ("mp3", "wav", "opus"). An empty
	// value selects the provider default.
	Format string
}

// Result is the synthesised audio.
type Result struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// Format is the container format of Audio.
	Format string
}

// Provider is the abstraction over any per-utterance TTS backend.
type Provider interface {
	// Synthesize converts req.Text into spoken audio. Returns an error if
	// the provider rejects the request or the synthesis fails.
	Synthesize(ctx context.Context, req Request) (Result, error)
}
