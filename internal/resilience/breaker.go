// Package resilience provides failover primitives for the voice pipeline's
// upstream providers.
//
// The building block is [Breaker], a three-state circuit breaker
// (closed, open, half-open) that stops a session from hammering a provider
// that is already failing. [Chain] composes a primary provider with ordered
// fallbacks, each behind its own breaker, and the STT/LLM/TTS wrappers in
// this package expose such chains through the regular provider interfaces so
// the cascade strategy never knows failover is happening.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Execute] while the breaker is open
// and the cooldown has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota

	// StateOpen rejects calls immediately with [ErrBreakerOpen] until the
	// cooldown elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through; their
	// outcome decides whether the breaker closes or re-opens.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig holds the tuning knobs for a [Breaker]. Zero fields take
// defaults suited to per-utterance provider calls.
type BreakerConfig struct {
	// MaxFailures is how many consecutive failures trip the breaker.
	// Default 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing again.
	// Default 30s.
	Cooldown time.Duration

	// ProbeBudget is how many half-open probe calls may run before the
	// breaker decides. Default 3.
	ProbeBudget int
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probeBudget int

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int
	probeFails  int
}

// NewBreaker creates a [Breaker]. The name appears in log lines only.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	return &Breaker{
		name:        name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probeBudget: cfg.ProbeBudget,
	}
}

// Execute runs fn if the breaker allows it and records the outcome. In the
// open state it returns [ErrBreakerOpen] without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = StateHalfOpen
		b.probes = 0
		b.probeFails = 0
		slog.Info("breaker half-open", "name", b.name)

	case StateHalfOpen:
		if b.probes >= b.probeBudget {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}

	probing := b.state == StateHalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.lastFailure = time.Now()

	if probing {
		// One failed probe re-opens immediately.
		b.probeFails++
		b.state = StateOpen
		b.failures = b.maxFailures
		slog.Warn("breaker re-opened", "name", b.name)
		return
	}

	b.failures++
	if b.failures >= b.maxFailures {
		b.state = StateOpen
		slog.Warn("breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probes-b.probeFails >= b.probeBudget {
			b.state = StateClosed
			b.failures = 0
			b.probes = 0
			b.probeFails = 0
			slog.Info("breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State returns the breaker's current state. An open breaker whose cooldown
// has elapsed reports half-open; the transition itself happens on the next
// [Breaker.Execute].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.lastFailure) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
}
