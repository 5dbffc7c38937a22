// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the cascade strategy sends
// correct CompletionRequests and to feed controlled streaming responses
// without a live LLM backend.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/resonate/pkg/provider/llm"
)

// Compile-time assertion that Provider satisfies llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	// Req is the CompletionRequest passed to StreamCompletion.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and
// nil errors. Set Err fields to inject failures.
type Provider struct {
	mu sync.Mutex

	// StreamChunks is the sequence of Chunk values emitted on the channel
	// returned by StreamCompletion. All chunks are sent before the channel
	// is closed.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned from StreamCompletion instead of
	// starting a channel.
	StreamErr error

	// CompleteText is returned by Complete.
	CompleteText string

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// StreamCalls records every invocation of StreamCompletion in order.
	StreamCalls []StreamCall
}

// StreamCompletion implements llm.Provider. It records the call and emits
// the configured chunks on a buffered channel.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.StreamCalls = append(p.StreamCalls, StreamCall{Req: req})
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	err := p.StreamErr
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(_ context.Context, _ llm.CompletionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CompleteText, p.CompleteErr
}

// Calls returns a copy of the recorded StreamCompletion invocations.
func (p *Provider) Calls() []StreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StreamCall, len(p.StreamCalls))
	copy(out, p.StreamCalls)
	return out
}
