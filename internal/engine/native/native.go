// Package native implements the [engine.Engine] interface on top of a
// speech-to-speech realtime provider.
//
// The engine opens one provider session per voice session and keeps it alive
// for the session's lifetime. Client audio is transcoded to the provider's
// PCM format and forwarded as-is; the provider's server-side VAD detects turn
// boundaries and drives response generation, so the engine itself never
// decides when the user has finished speaking. Provider events are mapped
// one-to-one onto engine events.
package native

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/resonate/internal/engine"
	"github.com/MrWong99/resonate/internal/history"
	"github.com/MrWong99/resonate/internal/observe"
	"github.com/MrWong99/resonate/pkg/audio"
	"github.com/MrWong99/resonate/pkg/provider/realtime"
)

// Compile-time assertion that Engine satisfies the engine.Engine interface.
var _ engine.Engine = (*Engine)(nil)

const (
	// defaultCheapModel and defaultComplexModel are the realtime models
	// selected by conversation mode.
	defaultCheapModel   = "gpt-4o-mini-realtime-preview"
	defaultComplexModel = "gpt-4o-realtime-preview"

	// primingDuration is the length of the silence clip sent right after
	// connecting. The upstream VAD needs a baseline of quiet audio before the
	// first real utterance or it misjudges the initial speech boundary.
	primingDuration = 100 * time.Millisecond

	// cheapMaxTokens and complexMaxTokens cap response length per
	// conversation mode unless overridden.
	cheapMaxTokens   = 150
	complexMaxTokens = 300
)

// upstreamFormat is the PCM format negotiated with the realtime provider.
var upstreamFormat = audio.PCMFormat{SampleRate: 24000, Channels: 1}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithModels overrides the model pair selected by conversation mode.
func WithModels(cheap, complex string) Option {
	return func(e *Engine) {
		e.cheapModel = cheap
		e.complexModel = complex
	}
}

// WithMetrics overrides the metrics instance. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine is the native realtime conversation strategy.
type Engine struct {
	provider   realtime.Provider
	transcoder *audio.Transcoder
	metrics    *observe.Metrics
	cfg        engine.Config

	cheapModel   string
	complexModel string

	mu      sync.Mutex
	session realtime.SessionHandle
	emit    engine.Emit
	closed  bool

	// wg tracks the event-forwarding goroutine so Close can wait for it.
	wg sync.WaitGroup
}

// New constructs a native Engine for one session. The engine does not connect
// to the provider until [Engine.Start].
func New(provider realtime.Provider, transcoder *audio.Transcoder, cfg engine.Config, opts ...Option) *Engine {
	e := &Engine{
		provider:     provider,
		transcoder:   transcoder,
		cfg:          cfg,
		cheapModel:   defaultCheapModel,
		complexModel: defaultComplexModel,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Name implements [engine.Engine].
func (e *Engine) Name() string { return "native" }

// Realtime implements [engine.Engine].
func (e *Engine) Realtime() bool { return true }

// model returns the upstream model for the configured conversation mode.
func (e *Engine) model() string {
	if e.cfg.Mode == engine.ModeComplex {
		return e.complexModel
	}
	return e.cheapModel
}

// maxTokens returns the response length cap for the session.
func (e *Engine) maxTokens() int {
	if e.cfg.MaxResponseTokens > 0 {
		return e.cfg.MaxResponseTokens
	}
	if e.cfg.Mode == engine.ModeComplex {
		return complexMaxTokens
	}
	return cheapMaxTokens
}

// Start implements [engine.Engine]. It connects the realtime session, primes
// the upstream VAD with a short silence clip, and starts forwarding provider
// events.
func (e *Engine) Start(ctx context.Context, emit engine.Emit) error {
	instructions := e.cfg.Instructions
	if instructions == "" {
		instructions = history.DefaultPreamble
	}

	sess, err := e.provider.Connect(ctx, realtime.SessionConfig{
		Model:             e.model(),
		Voice:             e.cfg.Voice,
		Instructions:      instructions,
		MaxResponseTokens: e.maxTokens(),
		TurnDetection:     realtime.DefaultTurnDetection(),
	})
	if err != nil {
		return fmt.Errorf("native: connect: %w", err)
	}

	// Baseline silence so the server VAD calibrates before real speech.
	prime := audio.Silence(upstreamFormat, primingDuration)
	if err := sess.SendAudio(prime); err != nil {
		_ = sess.Close()
		return fmt.Errorf("native: prime session: %w", err)
	}

	e.mu.Lock()
	e.session = sess
	e.emit = emit
	e.mu.Unlock()

	e.wg.Add(1)
	go e.forwardEvents(sess)

	return nil
}

// ProcessChunk implements [engine.Engine]. The clip is transcoded to the
// upstream PCM format and appended to the provider's input buffer; response
// generation is entirely VAD-driven on the provider side.
func (e *Engine) ProcessChunk(ctx context.Context, clip audio.Clip) error {
	e.mu.Lock()
	sess := e.session
	closed := e.closed
	e.mu.Unlock()

	if closed || sess == nil {
		return fmt.Errorf("native: engine is not running")
	}

	start := time.Now()
	pcm, tier := e.transcoder.ToPCM(ctx, clip, upstreamFormat)
	e.metrics.RecordTranscode(ctx, string(tier), time.Since(start).Seconds())

	if err := sess.SendAudio(pcm); err != nil {
		return fmt.Errorf("native: send audio: %w", err)
	}
	return nil
}

// forwardEvents maps provider events onto engine events until the provider's
// event channel closes. Conversation state lives upstream; the engine only
// translates and measures.
func (e *Engine) forwardEvents(sess realtime.SessionHandle) {
	defer e.wg.Done()

	ctx := context.Background()
	var turnStart time.Time

	for evt := range sess.Events() {
		switch evt.Type {
		case realtime.EventSessionReady:
			slog.Debug("realtime session ready", "session_id", e.cfg.SessionID)

		case realtime.EventSpeechStarted, realtime.EventSpeechStopped:
			// Turn boundaries are upstream-internal; the client learns about
			// turns through transcriptions and response events.

		case realtime.EventInputTranscription:
			e.send(engine.Event{Type: engine.EventTranscription, Role: "user", Text: evt.Text})

		case realtime.EventTextDelta:
			if turnStart.IsZero() {
				turnStart = time.Now()
			}
			e.send(engine.Event{Type: engine.EventTextDelta, Role: "assistant", Text: evt.Text})

		case realtime.EventAudioDelta:
			if turnStart.IsZero() {
				turnStart = time.Now()
			}
			e.send(engine.Event{
				Type:        engine.EventAudioDelta,
				Role:        "assistant",
				Audio:       evt.Audio,
				AudioFormat: "pcm16",
			})

		case realtime.EventResponseDone:
			if !turnStart.IsZero() {
				e.metrics.RecordTurn(ctx, e.Name(), time.Since(turnStart).Seconds())
				turnStart = time.Time{}
			}
			e.send(engine.Event{Type: engine.EventResponseDone, Role: "assistant"})

		case realtime.EventError:
			severity := "turn"
			if evt.Fatal {
				severity = "fatal"
			}
			e.metrics.RecordUpstreamError(ctx, "realtime", severity)
			e.send(engine.Event{Type: engine.EventError, Err: evt.Err, Fatal: evt.Fatal})
		}
	}
}

// send delivers an event through the registered emit callback unless the
// engine is closed.
func (e *Engine) send(evt engine.Event) {
	e.mu.Lock()
	emit := e.emit
	closed := e.closed
	e.mu.Unlock()

	if closed || emit == nil {
		return
	}
	emit(evt)
}

// Close implements [engine.Engine]. It closes the realtime session and waits
// for the forwarding goroutine.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sess := e.session
	e.session = nil
	e.mu.Unlock()

	if sess != nil {
		_ = sess.Close()
	}
	e.wg.Wait()
	return nil
}
