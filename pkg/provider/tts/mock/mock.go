// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/resonate/pkg/provider/tts"
)

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is the payload returned by every Synthesize call.
	Audio []byte

	// Format is the format reported with Audio (default "mp3").
	Format string

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// Requests records every Synthesize invocation in order.
	Requests []tts.Request
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(_ context.Context, req tts.Request) (tts.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return tts.Result{}, p.Err
	}
	format := p.Format
	if format == "" {
		format = "mp3"
	}
	return tts.Result{Audio: p.Audio, Format: format}, nil
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Request, len(p.Requests))
	copy(out, p.Requests)
	return out
}
