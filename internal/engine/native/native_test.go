package native_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/resonate/internal/engine"
	"github.com/MrWong99/resonate/internal/engine/native"
	"github.com/MrWong99/resonate/pkg/audio"
	"github.com/MrWong99/resonate/pkg/provider/realtime"
	"github.com/MrWong99/resonate/pkg/provider/realtime/mock"
)

// newEngine builds a native engine wired to a mock provider and an offline
// transcoder, plus a buffered channel that collects emitted events.
func newEngine(t *testing.T, cfg engine.Config) (*native.Engine, *mock.Provider, *mock.Session, chan engine.Event) {
	t.Helper()

	sess := mock.NewSession()
	provider := &mock.Provider{Session: sess}
	transcoder := audio.NewTranscoder(audio.WithFFmpegPath(""))

	if cfg.SessionID == "" {
		cfg.SessionID = "sess-1"
	}

	e := native.New(provider, transcoder, cfg)
	events := make(chan engine.Event, 64)
	return e, provider, sess, events
}

// start calls Start with the event collector and fails the test on error.
func start(t *testing.T, e *native.Engine, events chan engine.Event) {
	t.Helper()
	if err := e.Start(context.Background(), func(evt engine.Event) { events <- evt }); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

// waitEvent blocks until an event of the given type arrives.
func waitEvent(t *testing.T, events <-chan engine.Event, want engine.EventType) engine.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Type == want {
				return evt
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s event", want)
		}
	}
}

func TestNameAndRealtime(t *testing.T) {
	t.Parallel()
	e, _, _, _ := newEngine(t, engine.Config{})
	if e.Name() != "native" {
		t.Errorf("Name() = %q; want native", e.Name())
	}
	if !e.Realtime() {
		t.Error("Realtime() = false; want true")
	}
}

func TestStart_SelectsModelByMode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mode engine.Mode
		want string
	}{
		{engine.ModeCheap, "gpt-4o-mini-realtime-preview"},
		{engine.ModeComplex, "gpt-4o-realtime-preview"},
	}

	for _, tc := range cases {
		e, provider, sess, events := newEngine(t, engine.Config{Mode: tc.mode, Voice: "alloy"})
		start(t, e, events)

		if len(provider.Configs) != 1 {
			t.Fatalf("mode %s: Connect called %d times; want 1", tc.mode, len(provider.Configs))
		}
		got := provider.Configs[0]
		if got.Model != tc.want {
			t.Errorf("mode %s: model = %q; want %q", tc.mode, got.Model, tc.want)
		}
		if got.Voice != "alloy" {
			t.Errorf("mode %s: voice = %q; want alloy", tc.mode, got.Voice)
		}
		if got.TurnDetection != realtime.DefaultTurnDetection() {
			t.Errorf("mode %s: turn detection = %+v; want defaults", tc.mode, got.TurnDetection)
		}
		if got.Instructions == "" {
			t.Errorf("mode %s: instructions should default to the preamble", tc.mode)
		}

		sess.Finish()
		_ = e.Close()
	}
}

func TestStart_SendsPrimingSilence(t *testing.T) {
	t.Parallel()

	e, _, sess, events := newEngine(t, engine.Config{})
	start(t, e, events)
	defer e.Close()

	sent := sess.SentChunks()
	if len(sent) != 1 {
		t.Fatalf("sent chunks = %d; want 1 priming chunk", len(sent))
	}
	// 100ms of 24kHz mono PCM16 is 2400 samples = 4800 bytes of zeros.
	if len(sent[0]) != 4800 {
		t.Errorf("priming chunk = %d bytes; want 4800", len(sent[0]))
	}
	for _, b := range sent[0] {
		if b != 0 {
			t.Fatal("priming chunk should be pure silence")
		}
	}
}

func TestStart_ConnectError(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{ConnectErr: errors.New("dial refused")}
	e := native.New(provider, audio.NewTranscoder(audio.WithFFmpegPath("")), engine.Config{SessionID: "s"})

	err := e.Start(context.Background(), func(engine.Event) {})
	if err == nil {
		t.Fatal("Start should fail when the provider cannot connect")
	}
}

func TestProcessChunk_TranscodesAndForwards(t *testing.T) {
	t.Parallel()

	e, _, sess, events := newEngine(t, engine.Config{})
	start(t, e, events)
	defer e.Close()

	pcm := make([]byte, 960) // 20ms at 24kHz mono
	for i := range pcm {
		pcm[i] = byte(i)
	}
	clip := audio.Clip{Data: audio.EncodeWAV(pcm, 24000, 1), Format: audio.FormatWAV}

	if err := e.ProcessChunk(context.Background(), clip); err != nil {
		t.Fatalf("ProcessChunk: %v", err)
	}

	sent := sess.SentChunks()
	if len(sent) != 2 {
		t.Fatalf("sent chunks = %d; want priming + 1 audio chunk", len(sent))
	}
	if string(sent[1]) != string(pcm) {
		t.Error("forwarded PCM does not match the clip's samples")
	}
}

func TestProcessChunk_BeforeStart_ReturnsError(t *testing.T) {
	t.Parallel()

	e, _, _, _ := newEngine(t, engine.Config{})
	if err := e.ProcessChunk(context.Background(), audio.Clip{Data: []byte{1, 2}, Format: audio.FormatWAV}); err == nil {
		t.Fatal("ProcessChunk before Start should return an error")
	}
}

func TestEvents_MappedToEngineEvents(t *testing.T) {
	t.Parallel()

	e, _, sess, events := newEngine(t, engine.Config{})
	start(t, e, events)
	defer e.Close()

	sess.Emit(realtime.Event{Type: realtime.EventInputTranscription, Text: "hello there"})
	sess.Emit(realtime.Event{Type: realtime.EventTextDelta, Text: "Hi! "})
	sess.Emit(realtime.Event{Type: realtime.EventAudioDelta, Audio: []byte{1, 2, 3, 4}})
	sess.Emit(realtime.Event{Type: realtime.EventResponseDone})

	tr := waitEvent(t, events, engine.EventTranscription)
	if tr.Role != "user" || tr.Text != "hello there" {
		t.Errorf("transcription = %+v; want user/hello there", tr)
	}

	td := waitEvent(t, events, engine.EventTextDelta)
	if td.Role != "assistant" || td.Text != "Hi! " {
		t.Errorf("text delta = %+v", td)
	}

	ad := waitEvent(t, events, engine.EventAudioDelta)
	if ad.AudioFormat != "pcm16" || len(ad.Audio) != 4 {
		t.Errorf("audio delta = %+v; want 4 bytes of pcm16", ad)
	}

	waitEvent(t, events, engine.EventResponseDone)
}

func TestEvents_FatalErrorForwarded(t *testing.T) {
	t.Parallel()

	e, _, sess, events := newEngine(t, engine.Config{})
	start(t, e, events)
	defer e.Close()

	sess.Emit(realtime.Event{Type: realtime.EventError, Err: errors.New("connection lost"), Fatal: true})
	sess.Finish()

	evt := waitEvent(t, events, engine.EventError)
	if !evt.Fatal {
		t.Error("fatal provider error should map to a fatal engine error")
	}
	if evt.Err == nil {
		t.Error("error event should carry the cause")
	}
}

func TestEvents_TurnLocalErrorForwarded(t *testing.T) {
	t.Parallel()

	e, _, sess, events := newEngine(t, engine.Config{})
	start(t, e, events)
	defer e.Close()

	sess.Emit(realtime.Event{Type: realtime.EventError, Err: errors.New("audio unintelligible")})

	evt := waitEvent(t, events, engine.EventError)
	if evt.Fatal {
		t.Error("event-level provider error should stay turn-local")
	}
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	e, _, sess, events := newEngine(t, engine.Config{})
	start(t, e, events)

	if err := e.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if sess.Closed == 0 {
		t.Error("Close should close the provider session")
	}
}

func TestProcessChunk_AfterClose_ReturnsError(t *testing.T) {
	t.Parallel()

	e, _, _, events := newEngine(t, engine.Config{})
	start(t, e, events)
	_ = e.Close()

	if err := e.ProcessChunk(context.Background(), audio.Clip{Data: []byte{1, 2}, Format: audio.FormatWAV}); err == nil {
		t.Fatal("ProcessChunk after Close should return an error")
	}
}
