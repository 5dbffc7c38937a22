package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllProvidersFailed is returned when every entry in a [Chain] fails or
// sits behind an open breaker. It wraps the last underlying error.
var ErrAllProvidersFailed = errors.New("resilience: all providers failed")

// chainEntry pairs one provider with its dedicated breaker.
type chainEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain composes a primary provider with ordered fallbacks of the same type.
// Each entry gets its own [Breaker]; a failing or tripped entry is skipped in
// favour of the next one.
//
// Entries are registered before the chain is handed to sessions; afterwards
// the chain is read-only and safe for concurrent use.
type Chain[T any] struct {
	entries []chainEntry[T]
	breaker BreakerConfig
}

// NewChain creates a [Chain] with primary as the preferred entry. The breaker
// config applies to every entry, primary included.
func NewChain[T any](name string, primary T, cfg BreakerConfig) *Chain[T] {
	c := &Chain[T]{breaker: cfg}
	c.Add(name, primary)
	return c
}

// Add appends a fallback entry. Fallbacks are tried in registration order.
func (c *Chain[T]) Add(name string, value T) {
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(name, c.breaker),
	})
}

// Len returns the number of entries in the chain.
func (c *Chain[T]) Len() int { return len(c.entries) }

// Do tries fn against each entry in order until one succeeds. Entries with an
// open breaker are skipped. Returns [ErrAllProvidersFailed] wrapping the last
// error when nothing succeeds.
func (c *Chain[T]) Do(fn func(T) error) error {
	var lastErr error
	for i := range c.entries {
		entry := &c.entries[i]
		err := entry.breaker.Execute(func() error {
			return fn(entry.value)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping provider, breaker open", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", entry.name, "err", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
}

// DoResult tries fn against each chain entry until one succeeds and returns
// its result. A package-level function because Go methods cannot introduce
// type parameters.
func DoResult[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var result R
	err := c.Do(func(v T) error {
		var innerErr error
		result, innerErr = fn(v)
		return innerErr
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}
