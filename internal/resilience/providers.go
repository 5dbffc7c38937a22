package resilience

import (
	"context"

	"github.com/MrWong99/resonate/pkg/provider/llm"
	"github.com/MrWong99/resonate/pkg/provider/stt"
	"github.com/MrWong99/resonate/pkg/provider/tts"
)

// Compile-time interface assertions.
var (
	_ stt.Provider = (*STT)(nil)
	_ tts.Provider = (*TTS)(nil)
	_ llm.Provider = (*LLM)(nil)
)

// STT implements [stt.Provider] with automatic failover across multiple
// transcription backends.
type STT struct {
	chain *Chain[stt.Provider]
}

// NewSTT creates an [STT] with primary as the preferred backend.
func NewSTT(name string, primary stt.Provider, cfg BreakerConfig) *STT {
	return &STT{chain: NewChain(name, primary, cfg)}
}

// Add registers an additional transcription backend as a fallback.
func (s *STT) Add(name string, provider stt.Provider) {
	s.chain.Add(name, provider)
}

// Transcribe implements [stt.Provider]. The utterance is offered to each
// backend in order until one transcribes it.
func (s *STT) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	return DoResult(s.chain, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, req)
	})
}

// TTS implements [tts.Provider] with automatic failover across multiple
// synthesis backends.
type TTS struct {
	chain *Chain[tts.Provider]
}

// NewTTS creates a [TTS] with primary as the preferred backend.
func NewTTS(name string, primary tts.Provider, cfg BreakerConfig) *TTS {
	return &TTS{chain: NewChain(name, primary, cfg)}
}

// Add registers an additional synthesis backend as a fallback.
func (t *TTS) Add(name string, provider tts.Provider) {
	t.chain.Add(name, provider)
}

// Synthesize implements [tts.Provider].
func (t *TTS) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	return DoResult(t.chain, func(p tts.Provider) (tts.Result, error) {
		return p.Synthesize(ctx, req)
	})
}

// LLM implements [llm.Provider] with automatic failover across multiple chat
// backends.
type LLM struct {
	chain *Chain[llm.Provider]
}

// NewLLM creates an [LLM] with primary as the preferred backend.
func NewLLM(name string, primary llm.Provider, cfg BreakerConfig) *LLM {
	return &LLM{chain: NewChain(name, primary, cfg)}
}

// Add registers an additional chat backend as a fallback.
func (l *LLM) Add(name string, provider llm.Provider) {
	l.chain.Add(name, provider)
}

// StreamCompletion implements [llm.Provider]. Failover covers the initial
// stream setup only; once a stream is established, mid-stream errors reach
// the caller as chunks with FinishReason "error".
func (l *LLM) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return DoResult(l.chain, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Complete implements [llm.Provider].
func (l *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	return DoResult(l.chain, func(p llm.Provider) (string, error) {
		return p.Complete(ctx, req)
	})
}
