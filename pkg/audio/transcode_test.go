package audio_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/resonate/pkg/audio"
)

// newOfflineTranscoder returns a Transcoder with the external tier disabled,
// so tests exercise the library and degraded tiers deterministically.
func newOfflineTranscoder(opts ...audio.TranscoderOption) *audio.Transcoder {
	return audio.NewTranscoder(append([]audio.TranscoderOption{audio.WithFFmpegPath("")}, opts...)...)
}

func TestToPCM_LibraryTier_WAVInput(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{100, 200, 300, 400})
	clip := audio.Clip{Data: audio.EncodeWAV(pcm, 24000, 1), Format: audio.FormatWAV}

	tr := newOfflineTranscoder()
	out, tier := tr.ToPCM(context.Background(), clip, audio.PCMFormat{SampleRate: 24000, Channels: 1})

	if tier != audio.TierLibrary {
		t.Fatalf("tier = %s, want library", tier)
	}
	if !bytes.Equal(out, pcm) {
		t.Errorf("PCM mismatch: got %d bytes, want %d", len(out), len(pcm))
	}
}

func TestToPCM_LibraryTier_Resamples(t *testing.T) {
	t.Parallel()

	// 48kHz stereo WAV → 24kHz mono PCM.
	pcm := samplesToBytes([]int16{100, 200, 300, 400, 500, 600, 700, 800})
	clip := audio.Clip{Data: audio.EncodeWAV(pcm, 48000, 2), Format: audio.FormatWAV}

	tr := newOfflineTranscoder()
	out, tier := tr.ToPCM(context.Background(), clip, audio.PCMFormat{SampleRate: 24000, Channels: 1})

	if tier != audio.TierLibrary {
		t.Fatalf("tier = %s, want library", tier)
	}
	// 2 stereo frames at 48kHz → 1 stereo frame at 24kHz → 1 mono sample.
	if len(out) != 2 {
		t.Errorf("expected 2 bytes of mono PCM, got %d", len(out))
	}
}

func TestToPCM_DegradedTier_SilenceForOpaqueInput(t *testing.T) {
	t.Parallel()

	target := audio.PCMFormat{SampleRate: 24000, Channels: 1}
	clip := audio.Clip{Data: []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00}, Format: audio.FormatWebM}

	tr := newOfflineTranscoder(audio.WithSilenceDuration(100 * time.Millisecond))
	out, tier := tr.ToPCM(context.Background(), clip, target)

	if tier != audio.TierDegraded {
		t.Fatalf("tier = %s, want degraded", tier)
	}
	// 100ms at 24kHz mono PCM16 = 2400 samples = 4800 bytes, all zero.
	if len(out) != 4800 {
		t.Fatalf("silence length = %d bytes, want 4800", len(out))
	}
	for _, b := range out {
		if b != 0 {
			t.Fatal("silence buffer contains non-zero bytes")
		}
	}
}

func TestToPCM_DegradedTier_RawPassthroughForDeclaredWAV(t *testing.T) {
	t.Parallel()

	// Even-length payload declared as WAV but without a RIFF container is
	// assumed to be raw PCM16 already.
	raw := samplesToBytes([]int16{7, 8, 9})
	clip := audio.Clip{Data: raw, Format: audio.FormatWAV}

	tr := newOfflineTranscoder()
	out, tier := tr.ToPCM(context.Background(), clip, audio.PCMFormat{SampleRate: 24000, Channels: 1})

	if tier != audio.TierDegraded {
		t.Fatalf("tier = %s, want degraded", tier)
	}
	if !bytes.Equal(out, raw) {
		t.Error("raw PCM payload should pass through unchanged")
	}
}

func TestToPCM_NeverFails(t *testing.T) {
	t.Parallel()

	tr := newOfflineTranscoder()
	target := audio.PCMFormat{SampleRate: 24000, Channels: 1}

	inputs := []audio.Clip{
		{Data: []byte{0x00}, Format: audio.FormatOGG},
		{Data: []byte("garbage that is not audio"), Format: audio.FormatMP3},
		{Data: audio.EncodeWAV(nil, 16000, 1), Format: audio.FormatWAV},
	}
	for _, clip := range inputs {
		out, _ := tr.ToPCM(context.Background(), clip, target)
		if out == nil {
			t.Errorf("ToPCM returned nil for %q input", clip.Format)
		}
	}
}

func TestToWAV_LibraryTier(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{100, 200, 300, 400})
	clip := audio.Clip{Data: audio.EncodeWAV(pcm, 48000, 1), Format: audio.FormatWAV}

	tr := newOfflineTranscoder()
	out, err := tr.ToWAV(context.Background(), clip, audio.PCMFormat{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("ToWAV: %v", err)
	}

	_, rate, channels, err := audio.DecodeWAV(out)
	if err != nil {
		t.Fatalf("output is not valid WAV: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("output format = %dHz/%dch, want 16000Hz/1ch", rate, channels)
	}
}

func TestToWAV_FailsForOpaqueInputWithoutFFmpeg(t *testing.T) {
	t.Parallel()

	clip := audio.Clip{Data: []byte("not a container"), Format: audio.FormatWebM}

	tr := newOfflineTranscoder()
	_, err := tr.ToWAV(context.Background(), clip, audio.PCMFormat{SampleRate: 16000, Channels: 1})
	if err == nil {
		t.Fatal("expected fault for undecodable input")
	}

	var fault *audio.Fault
	if !errors.As(err, &fault) {
		t.Fatalf("error is %T, want *audio.Fault", err)
	}
	if fault.Tier != audio.TierExternal {
		t.Errorf("fault tier = %s, want external", fault.Tier)
	}
}

func TestSilence_SampleCount(t *testing.T) {
	t.Parallel()

	out := audio.Silence(audio.PCMFormat{SampleRate: 24000, Channels: 1}, 100*time.Millisecond)
	if len(out) != 2400*2 {
		t.Errorf("silence = %d bytes, want %d", len(out), 2400*2)
	}

	stereo := audio.Silence(audio.PCMFormat{SampleRate: 16000, Channels: 2}, time.Second)
	if len(stereo) != 16000*2*2 {
		t.Errorf("stereo silence = %d bytes, want %d", len(stereo), 16000*2*2)
	}
}
