package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/live-translator/internal/observability"
)

// ErrAllFailed is returned when every entry in a FallbackGroup fails or has
// an open circuit breaker
var ErrAllFailed = errors.New("all providers failed")

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup tries providers of the same kind in registration order,
// each behind its own circuit breaker. Entries must be added before use.
type FallbackGroup[T any] struct {
	entries      []fallbackEntry[T]
	maxFailures  int
	resetTimeout time.Duration
	logger       zerolog.Logger
}

// NewFallbackGroup creates a group with primary as the first entry
func NewFallbackGroup[T any](primary T, primaryName string, maxFailures int, resetTimeout time.Duration, logger zerolog.Logger) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		logger:       logger,
	}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a provider tried after those already registered
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(name, fg.maxFailures, fg.resetTimeout),
	})
}

// Names returns the provider names in the order they are tried
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// Breaker returns the circuit breaker of the named provider, or nil
func (fg *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	for i := range fg.entries {
		if fg.entries[i].name == name {
			return fg.entries[i].breaker
		}
	}
	return nil
}

// ExecuteWithResult tries fn against each entry until one succeeds. Entries
// with an open circuit are skipped.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]

		var result R
		err := entry.breaker.Call(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		observability.UpdateCircuitBreakerState(entry.name, int(entry.breaker.GetState()))
		if err == nil {
			return result, nil
		}

		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			fg.logger.Debug().Str("provider", entry.name).Msg("Skipping provider (circuit open)")
			continue
		}
		observability.IncrementCircuitBreakerFailures(entry.name)
		fg.logger.Warn().Str("provider", entry.name).Err(err).Msg("Provider failed, trying next")
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
