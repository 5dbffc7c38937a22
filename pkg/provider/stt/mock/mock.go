// Package mock provides a test double for the stt.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/resonate/pkg/provider/stt"
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider is a mock implementation of stt.Provider. It returns the
// configured transcripts in order, one per Transcribe call, repeating the
// last one when exhausted.
type Provider struct {
	mu sync.Mutex

	// Transcripts is the sequence of transcripts to return.
	Transcripts []string

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Requests records every Transcribe invocation in order.
	Requests []stt.Request
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(_ context.Context, req stt.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Transcripts) == 0 {
		return "", nil
	}
	idx := len(p.Requests) - 1
	if idx >= len(p.Transcripts) {
		idx = len(p.Transcripts) - 1
	}
	return p.Transcripts[idx], nil
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []stt.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]stt.Request, len(p.Requests))
	copy(out, p.Requests)
	return out
}
