// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The cascade conversation strategy works per utterance: each submitted audio
// chunk is a complete voice clip, transcribed in one call rather than through
// a long-lived streaming session. Providers therefore expose a single
// Transcribe method over whole audio files.
//
// Implementations must be safe for concurrent use; multiple sessions may
// transcribe simultaneously.
package stt

import "context"

// Request carries one utterance to transcribe.
type Request struct {
	// Audio is the complete audio payload, typically a WAV container.
	Audio []byte

	// Format is the container format of Audio ("wav", "mp3", "webm", "ogg").
	// Providers use it to name the upload; an empty value means "wav".
	Format string

	// Prompt is optional context for the recogniser. Passing the previous
	// utterance's transcript here keeps recognition consistent across a
	// multi-turn conversation.
	Prompt string
}

// Provider is the abstraction over any per-utterance STT backend.
type Provider interface {
	// Transcribe converts the given audio into text. Returns an error if the
	// provider rejects the audio or the request fails; an empty transcript
	// with a nil error means the clip contained no recognisable speech.
	Transcribe(ctx context.Context, req Request) (string, error)
}
