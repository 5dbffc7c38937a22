// Package audio provides the audio plumbing for Resonate: envelope decoding
// for client-submitted chunks, WAV container handling, PCM16 conversion
// helpers, and the tiered Transcoder that normalises arbitrary client audio
// into the formats the upstream providers expect.
package audio

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Known envelope formats. Anything else is treated as FormatWAV.
const (
	FormatWAV  = "wav"
	FormatMP3  = "mp3"
	FormatWebM = "webm"
	FormatOGG  = "ogg"
)

// Clip is a decoded client audio chunk: raw container bytes plus the format
// declared (or sniffed) from the envelope.
type Clip struct {
	Data   []byte
	Format string
}

// DecodeEnvelope decodes a client audio payload. The payload is either plain
// base64 or a data URI of the form "data:<mime>;base64,<payload>". The format
// is taken from the MIME type when present; unrecognised or absent MIME types
// default to WAV.
func DecodeEnvelope(payload string) (Clip, error) {
	format := FormatWAV
	encoded := payload

	if idx := strings.IndexByte(payload, ','); idx >= 0 {
		format = formatFromMIME(payload[:idx])
		encoded = payload[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode envelope base64: %w", err)
	}
	if len(data) == 0 {
		return Clip{}, fmt.Errorf("audio: empty audio payload")
	}

	return Clip{Data: data, Format: format}, nil
}

// formatFromMIME maps a data URI prefix (e.g. "data:audio/webm;base64") to a
// known envelope format. Unknown MIME types fall back to WAV.
func formatFromMIME(prefix string) string {
	switch {
	case strings.Contains(prefix, "audio/wav"), strings.Contains(prefix, "audio/x-wav"):
		return FormatWAV
	case strings.Contains(prefix, "audio/mp3"), strings.Contains(prefix, "audio/mpeg"):
		return FormatMP3
	case strings.Contains(prefix, "audio/webm"):
		return FormatWebM
	case strings.Contains(prefix, "audio/ogg"):
		return FormatOGG
	}
	return FormatWAV
}
