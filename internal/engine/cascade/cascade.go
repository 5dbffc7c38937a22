// Package cascade implements the [engine.Engine] interface as a
// per-utterance STT → LLM → TTS pipeline.
//
// Each submitted audio chunk is treated as one complete user utterance: it is
// transcoded to WAV, transcribed, and answered with a streamed LLM completion
// whose full text is then synthesised into a single audio clip. The previous
// utterance's transcript is passed to the recogniser as a prompt so proper
// nouns stay consistent across turns, and the conversation context store
// bounds the LLM prompt to the system preamble plus a sliding window of
// recent turns.
//
// Generation runs in a background goroutine per utterance, so a new utterance
// may arrive while the previous response is still streaming. Turn-local
// failures (transcode, STT, LLM, TTS) abort only the affected turn.
package cascade

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/resonate/internal/engine"
	"github.com/MrWong99/resonate/internal/history"
	"github.com/MrWong99/resonate/internal/observe"
	"github.com/MrWong99/resonate/pkg/audio"
	"github.com/MrWong99/resonate/pkg/provider/llm"
	"github.com/MrWong99/resonate/pkg/provider/stt"
	"github.com/MrWong99/resonate/pkg/provider/tts"
)

// Compile-time assertion that Engine satisfies the engine.Engine interface.
var _ engine.Engine = (*Engine)(nil)

const (
	// defaultTemperature is the sampling temperature for response generation.
	defaultTemperature = 0.7

	// cheapMaxTokens and complexMaxTokens cap completion length per
	// conversation mode.
	cheapMaxTokens   = 150
	complexMaxTokens = 300

	// synthFormat is the container format requested from the TTS provider.
	synthFormat = "mp3"
)

// sttFormat is the PCM format handed to the speech recogniser.
var sttFormat = audio.PCMFormat{SampleRate: 16000, Channels: 1}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithTemperature overrides the LLM sampling temperature.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithMaxTokens overrides the completion token cap derived from the
// conversation mode.
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// WithMetrics overrides the metrics instance. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine is the cascade conversation strategy.
type Engine struct {
	sttP       stt.Provider
	llmP       llm.Provider
	ttsP       tts.Provider
	transcoder *audio.Transcoder
	hist       *history.Store
	metrics    *observe.Metrics
	cfg        engine.Config

	temperature float64
	maxTokens   int

	mu             sync.Mutex
	emit           engine.Emit
	lastTranscript string
	closed         bool

	ctx    context.Context
	cancel context.CancelFunc

	// wg tracks the generation goroutines spawned by ProcessChunk so Close
	// (and tests, via Wait) can synchronise with in-flight turns.
	wg sync.WaitGroup
}

// New constructs a cascade Engine for one session. The llm provider passed in
// determines the model; the caller selects it according to cfg.Mode.
func New(sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider, transcoder *audio.Transcoder, hist *history.Store, cfg engine.Config, opts ...Option) *Engine {
	e := &Engine{
		sttP:        sttP,
		llmP:        llmP,
		ttsP:        ttsP,
		transcoder:  transcoder,
		hist:        hist,
		cfg:         cfg,
		temperature: defaultTemperature,
		maxTokens:   cheapMaxTokens,
	}
	if cfg.Mode == engine.ModeComplex {
		e.maxTokens = complexMaxTokens
	}
	if cfg.MaxResponseTokens > 0 {
		e.maxTokens = cfg.MaxResponseTokens
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
func (e *Engine) Name() string { return "cascade" }

// Realtime implements [engine.Engine].
func (e *Engine) Realtime() bool { return false }

// Start implements [engine.Engine]. It opens the session's conversation
// history and registers the event sink; no upstream connection is needed
// until the first utterance arrives.
func (e *Engine) Start(_ context.Context, emit engine.Emit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("cascade: engine is closed")
	}
	e.emit = emit
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.hist.Open(e.cfg.SessionID, e.cfg.Instructions)
	return nil
}

// ProcessChunk implements [engine.Engine]. It transcribes the utterance
// synchronously, then generates and synthesises the response in a background
// goroutine so the caller's receive loop is never blocked on the LLM.
func (e *Engine) ProcessChunk(ctx context.Context, clip audio.Clip) error {
	e.mu.Lock()
	if e.closed || e.emit == nil {
		e.mu.Unlock()
		return fmt.Errorf("cascade: engine is not running")
	}
	prompt := e.lastTranscript
	e.mu.Unlock()

	// Stage 1: normalise the clip to a WAV the recogniser accepts.
	start := time.Now()
	wav, err := e.transcoder.ToWAV(ctx, clip, sttFormat)
	e.metrics.RecordTranscode(ctx, tierOf(err), time.Since(start).Seconds())
	if err != nil {
		e.send(engine.Event{Type: engine.EventError, Err: fmt.Errorf("cascade: transcode: %w", err)})
		return nil
	}

	// Stage 2: transcribe.
	sttStart := time.Now()
	transcript, err := e.sttP.Transcribe(ctx, stt.Request{Audio: wav, Format: "wav", Prompt: prompt})
	e.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		e.metrics.RecordUpstreamError(ctx, "stt", "turn")
		e.send(engine.Event{Type: engine.EventError, Err: fmt.Errorf("cascade: transcribe: %w", err)})
		return nil
	}
	if strings.TrimSpace(transcript) == "" {
		// No recognisable speech in the clip.
		return nil
	}

	e.mu.Lock()
	e.lastTranscript = transcript
	e.mu.Unlock()

	e.hist.Append(e.cfg.SessionID, history.Entry{Role: "user", Content: transcript})
	e.send(engine.Event{Type: engine.EventTranscription, Role: "user", Text: transcript})

	snapshot := e.hist.Snapshot(e.cfg.SessionID)

	// Stage 3+4: generate and synthesise off the caller's goroutine. The
	// engine-scoped context keeps generation alive after ProcessChunk
	// returns and cancels it on Close.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.generate(snapshot)
	}()

	return nil
}

// generate streams the LLM response for one turn, synthesises the full text,
// and emits the closing events. All failures are turn-local.
func (e *Engine) generate(snapshot []history.Entry) {
	ctx := e.ctx
	turnStart := time.Now()

	messages := make([]llm.Message, len(snapshot))
	for i, entry := range snapshot {
		messages[i] = llm.Message{Role: entry.Role, Content: entry.Content}
	}

	llmStart := time.Now()
	chunks, err := e.llmP.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:    messages,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		e.metrics.RecordUpstreamError(ctx, "llm", "turn")
		e.send(engine.Event{Type: engine.EventError, Err: fmt.Errorf("cascade: completion: %w", err)})
		return
	}

	var text strings.Builder
	for chunk := range chunks {
		if chunk.FinishReason == "error" {
			e.metrics.RecordUpstreamError(ctx, "llm", "turn")
			e.send(engine.Event{Type: engine.EventError, Err: fmt.Errorf("cascade: completion stream: %s", chunk.Text)})
			return
		}
		if chunk.Text == "" {
			continue
		}
		text.WriteString(chunk.Text)
		e.send(engine.Event{Type: engine.EventTextDelta, Role: "assistant", Text: chunk.Text})
	}
	e.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())

	response := text.String()
	if response == "" {
		return
	}

	ttsStart := time.Now()
	result, err := e.ttsP.Synthesize(ctx, tts.Request{
		Text:   response,
		Voice:  e.cfg.Voice,
		Speed:  e.cfg.Speed,
		Format: synthFormat,
	})
	e.metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
	if err != nil {
		// The text made it through; close the turn without audio so the
		// client still sees a complete exchange.
		e.metrics.RecordUpstreamError(ctx, "tts", "turn")
		e.send(engine.Event{Type: engine.EventError, Err: fmt.Errorf("cascade: synthesize: %w", err)})
	} else {
		e.send(engine.Event{
			Type:        engine.EventAudioResponse,
			Role:        "assistant",
			Audio:       result.Audio,
			AudioFormat: result.Format,
		})
	}

	e.hist.Append(e.cfg.SessionID, history.Entry{Role: "assistant", Content: response})
	e.send(engine.Event{Type: engine.EventResponseDone, Role: "assistant"})
	e.metrics.RecordTurn(ctx, e.Name(), time.Since(turnStart).Seconds())
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

// Wait blocks until all in-flight generation goroutines have finished.
// Primarily useful in tests to synchronise before inspecting mock records.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close implements [engine.Engine]. It cancels in-flight generation, waits
// for it to wind down, and drops the session history.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	e.hist.Drop(e.cfg.SessionID)
	return nil
}

// tierOf maps a ToWAV outcome onto the transcode tier label recorded in
// metrics. ToWAV has no degraded fallback, so any error means no tier served
// the request.
func tierOf(err error) string {
	if err == nil {
		return "converted"
	}
	return "failed"
}
