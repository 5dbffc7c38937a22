// Package mock provides a test double for the engine.Engine interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/resonate/internal/engine"
	"github.com/MrWong99/resonate/pkg/audio"
)

// Compile-time assertion that Engine satisfies engine.Engine.
var _ engine.Engine = (*Engine)(nil)

// Engine is a mock implementation of engine.Engine. Tests configure the
// response fields, feed events through Emit, and inspect the recorded calls.
type Engine struct {
	mu sync.Mutex

	// NameVal is returned by Name (default "mock").
	NameVal string

	// RealtimeVal is returned by Realtime.
	RealtimeVal bool

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// ProcessErr, if non-nil, is returned by every ProcessChunk call.
	ProcessErr error

	// PerChunk, when non-empty, is emitted after each successful
	// ProcessChunk call, simulating a pipeline response.
	PerChunk []engine.Event

	// Clips records every clip passed to ProcessChunk in order.
	Clips []audio.Clip

	// Starts and Closes count the respective calls.
	Starts int
	Closes int

	emit engine.Emit
}

// Name implements engine.Engine.
func (e *Engine) Name() string {
	if e.NameVal == "" {
		return "mock"
	}
	return e.NameVal
}

// Realtime implements engine.Engine.
func (e *Engine) Realtime() bool { return e.RealtimeVal }

// Start implements engine.Engine.
func (e *Engine) Start(_ context.Context, emit engine.Emit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Starts++
	if e.StartErr != nil {
		return e.StartErr
	}
	e.emit = emit
	return nil
}

// ProcessChunk implements engine.Engine.
func (e *Engine) ProcessChunk(_ context.Context, clip audio.Clip) error {
	e.mu.Lock()
	if e.ProcessErr != nil {
		err := e.ProcessErr
		e.mu.Unlock()
		return err
	}
	e.Clips = append(e.Clips, clip)
	emit := e.emit
	events := e.PerChunk
	e.mu.Unlock()

	if emit != nil {
		for _, evt := range events {
			emit(evt)
		}
	}
	return nil
}

// Emit delivers an event through the sink registered by Start. It is a no-op
// before Start.
func (e *Engine) Emit(evt engine.Event) {
	e.mu.Lock()
	emit := e.emit
	e.mu.Unlock()
	if emit != nil {
		emit(evt)
	}
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Closes++
	return nil
}

// CloseCount returns the number of Close calls.
func (e *Engine) CloseCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Closes
}

// ProcessedClips returns a copy of the recorded clips.
func (e *Engine) ProcessedClips() []audio.Clip {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]audio.Clip, len(e.Clips))
	copy(out, e.Clips)
	return out
}

// Factory is a mock engine.Factory that records the configs it was called
// with and returns pre-built engines.
type Factory struct {
	mu sync.Mutex

	// Engine is returned by every call when Engines is empty. When nil, a
	// fresh Engine is created per call.
	Engine *Engine

	// Err, if non-nil, is returned by every call.
	Err error

	// Configs records every config passed to the factory.
	Configs []engine.Config

	// Built records every engine handed out.
	Built []*Engine
}

// New is the engine.Factory function.
func (f *Factory) New(cfg engine.Config) (engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Configs = append(f.Configs, cfg)
	if f.Err != nil {
		return nil, f.Err
	}

	eng := f.Engine
	if eng == nil {
		eng = &Engine{}
	}
	f.Built = append(f.Built, eng)
	return eng, nil
}

// AllConfigs returns a copy of the recorded factory configs.
func (f *Factory) AllConfigs() []engine.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]engine.Config, len(f.Configs))
	copy(out, f.Configs)
	return out
}

// BuiltEngines returns a copy of the engines handed out so far.
func (f *Factory) BuiltEngines() []*Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Engine, len(f.Built))
	copy(out, f.Built)
	return out
}
