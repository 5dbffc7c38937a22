package audio_test

import (
	"bytes"
	"testing"

	"github.com/MrWong99/resonate/pkg/audio"
)

func TestEncodeDecodeWAV(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{0, 100, -100, 32767, -32768})
	wav := audio.EncodeWAV(pcm, 16000, 1)

	if !audio.HasRIFFHeader(wav) {
		t.Fatal("encoded WAV missing RIFF header")
	}

	gotPCM, rate, channels, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("format = %dHz/%dch, want 16000Hz/1ch", rate, channels)
	}
	if !bytes.Equal(gotPCM, pcm) {
		t.Errorf("PCM payload mismatch")
	}
}

func TestDecodeWAV_NotRIFF(t *testing.T) {
	t.Parallel()

	if _, _, _, err := audio.DecodeWAV([]byte("OggS....")); err == nil {
		t.Fatal("expected error for non-RIFF input")
	}
}

func TestDecodeWAV_UnsupportedBitDepth(t *testing.T) {
	t.Parallel()

	wav := audio.EncodeWAV(samplesToBytes([]int16{1, 2}), 16000, 1)
	// Corrupt the bits-per-sample field (offset 34).
	wav[34] = 8
	if _, _, _, err := audio.DecodeWAV(wav); err == nil {
		t.Fatal("expected error for 8-bit WAV")
	}
}

func TestTrimWAVHeader(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{10, 20, 30})
	wav := audio.EncodeWAV(pcm, 24000, 1)

	trimmed := audio.TrimWAVHeader(wav)
	if !bytes.Equal(trimmed, pcm) {
		t.Errorf("trimmed payload mismatch: got %d bytes, want %d", len(trimmed), len(pcm))
	}
}

func TestTrimWAVHeader_PassthroughForRawPCM(t *testing.T) {
	t.Parallel()

	raw := samplesToBytes([]int16{1, 2, 3, 4})
	if got := audio.TrimWAVHeader(raw); !bytes.Equal(got, raw) {
		t.Error("raw PCM without RIFF magic must pass through unchanged")
	}
}
