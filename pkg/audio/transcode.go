package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Tier identifies which conversion strategy produced a result or a failure.
type Tier string

const (
	// TierExternal is the external tool tier (ffmpeg subprocess).
	TierExternal Tier = "external"

	// TierLibrary is the pure in-process tier (WAV decode + resample).
	TierLibrary Tier = "library"

	// TierDegraded is the last-resort tier: raw passthrough for payloads
	// that already look like PCM16, or synthesized silence.
	TierDegraded Tier = "degraded"
)

// Fault is a typed transcoding failure carrying the tier that failed.
type Fault struct {
	Tier Tier
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("audio: transcode tier %s: %v", f.Tier, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// defaultSilence is the duration of silence synthesized when every tier is
// unable to produce PCM for the realtime path. 100 ms keeps the upstream
// stream alive without audible artefacts.
const defaultSilence = 100 * time.Millisecond

// Transcoder converts client audio clips into provider formats using a
// three-tier fallback: ffmpeg subprocess, pure-Go WAV handling, then
// degradation (passthrough or silence). Safe for concurrent use.
type Transcoder struct {
	ffmpegPath string
	silence    time.Duration

	lookupOnce sync.Once
	resolved   string
}

// TranscoderOption is a functional option for configuring a Transcoder.
type TranscoderOption func(*Transcoder)

// WithFFmpegPath pins the ffmpeg binary location instead of searching PATH.
// An empty path disables the external tier entirely.
func WithFFmpegPath(path string) TranscoderOption {
	return func(t *Transcoder) {
		t.ffmpegPath = path
		t.resolved = path
		t.lookupOnce.Do(func() {})
	}
}

// WithSilenceDuration overrides the duration of degraded-tier silence.
func WithSilenceDuration(d time.Duration) TranscoderOption {
	return func(t *Transcoder) { t.silence = d }
}

// NewTranscoder creates a Transcoder. Without options, ffmpeg is resolved
// lazily from PATH on first use.
func NewTranscoder(opts ...TranscoderOption) *Transcoder {
	t := &Transcoder{silence: defaultSilence}
	for _, o := range opts {
		o(t)
	}
	return t
}

// ToPCM converts clip into headerless little-endian PCM16 in the target
// format. It never returns an error: when both real tiers fail the degraded
// tier passes raw samples through or synthesizes silence so the caller can
// keep the upstream stream alive. The tier that produced the result is
// returned for logging and metrics.
func (t *Transcoder) ToPCM(ctx context.Context, clip Clip, target PCMFormat) ([]byte, Tier) {
	if pcm, err := t.runFFmpeg(ctx, clip, []string{
		"-f", "s16le",
		"-ar", fmt.Sprint(target.SampleRate),
		"-ac", fmt.Sprint(target.Channels),
	}, "raw"); err == nil {
		return pcm, TierExternal
	} else if !errors.Is(err, errExternalUnavailable) {
		slog.Debug("audio: external transcode failed, trying library tier", "err", err)
	}

	if HasRIFFHeader(clip.Data) {
		pcm, rate, channels, err := DecodeWAV(clip.Data)
		if err == nil {
			converted := ConvertPCM(pcm, PCMFormat{SampleRate: rate, Channels: channels}, target)
			return converted, TierLibrary
		}
		slog.Debug("audio: library transcode failed", "err", err)
	}

	// Degraded tier: a WAV-declared payload without a parseable container is
	// assumed to be raw PCM16 already; anything else becomes silence.
	if clip.Format == FormatWAV && len(clip.Data) >= 2 {
		return TrimWAVHeader(clip.Data), TierDegraded
	}
	return Silence(target, t.silence), TierDegraded
}

// ToWAV converts clip into a PCM16 RIFF/WAVE container in the target format,
// for providers that consume whole files (speech-to-text). Unlike ToPCM it
// fails hard: when no tier can produce a valid container a *Fault is
// returned and the caller decides whether to submit the original bytes.
func (t *Transcoder) ToWAV(ctx context.Context, clip Clip, target PCMFormat) ([]byte, error) {
	out, err := t.runFFmpeg(ctx, clip, []string{
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(target.SampleRate),
		"-ac", fmt.Sprint(target.Channels),
	}, FormatWAV)
	if err == nil {
		return out, nil
	}
	external := err

	if HasRIFFHeader(clip.Data) {
		pcm, rate, channels, decErr := DecodeWAV(clip.Data)
		if decErr == nil {
			converted := ConvertPCM(pcm, PCMFormat{SampleRate: rate, Channels: channels}, target)
			return EncodeWAV(converted, target.SampleRate, target.Channels), nil
		}
		return nil, &Fault{Tier: TierLibrary, Err: decErr}
	}

	if errors.Is(external, errExternalUnavailable) {
		external = fmt.Errorf("ffmpeg not available and %s input has no in-process decoder", clip.Format)
	}
	return nil, &Fault{Tier: TierExternal, Err: external}
}

// Silence returns d worth of PCM16 zero samples in the given format.
func Silence(target PCMFormat, d time.Duration) []byte {
	samples := int(int64(target.SampleRate) * int64(d) / int64(time.Second))
	return make([]byte, samples*2*target.Channels)
}

// errExternalUnavailable marks the external tier as skipped rather than failed.
var errExternalUnavailable = errors.New("audio: ffmpeg unavailable")

// ffmpeg returns the resolved ffmpeg path, or "" when the external tier is
// unavailable. Resolution happens once per Transcoder.
func (t *Transcoder) ffmpeg() string {
	t.lookupOnce.Do(func() {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			slog.Warn("audio: ffmpeg not found in PATH; external transcode tier disabled")
			return
		}
		t.resolved = path
	})
	return t.resolved
}

// runFFmpeg shells out to ffmpeg, feeding clip through temp files. outFormat
// "raw" produces headerless PCM (ffmpeg -f s16le output); any other value is
// used as the output file suffix and container selector.
func (t *Transcoder) runFFmpeg(ctx context.Context, clip Clip, outputArgs []string, outFormat string) ([]byte, error) {
	path := t.ffmpeg()
	if path == "" {
		return nil, errExternalUnavailable
	}

	in, err := os.CreateTemp("", "resonate-in-*."+clip.Format)
	if err != nil {
		return nil, fmt.Errorf("audio: create temp input: %w", err)
	}
	defer os.Remove(in.Name())

	if _, err := in.Write(clip.Data); err != nil {
		in.Close()
		return nil, fmt.Errorf("audio: write temp input: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("audio: close temp input: %w", err)
	}

	suffix := outFormat
	if outFormat == "raw" {
		suffix = "pcm"
	}
	out, err := os.CreateTemp("", "resonate-out-*."+suffix)
	if err != nil {
		return nil, fmt.Errorf("audio: create temp output: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	args := []string{"-y", "-i", in.Name()}
	args = append(args, outputArgs...)
	args = append(args, outPath)

	cmd := exec.CommandContext(ctx, path, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("audio: ffmpeg: %w (%s)", err, firstLine(output))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("audio: read ffmpeg output: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("audio: ffmpeg produced empty output")
	}
	return data, nil
}

// firstLine trims ffmpeg's noisy stderr down to its first line for error wrapping.
func firstLine(output []byte) string {
	for i, b := range output {
		if b == '\n' {
			return string(output[:i])
		}
	}
	return string(output)
}
