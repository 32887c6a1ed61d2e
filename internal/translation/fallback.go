package translation

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/live-translator/internal/config"
	"github.com/lexiqai/live-translator/internal/resilience"
)

// Fallback implements Translator over several providers. Each provider has
// its own circuit breaker and retries transient failures before the next
// provider is tried.
type Fallback struct {
	group *resilience.FallbackGroup[Translator]
	retry *resilience.RetryConfig
}

// Compile-time interface assertions
var (
	_ Translator = (*Fallback)(nil)
	_ Translator = (*GoogleTranslator)(nil)
	_ Translator = (*MyMemoryTranslator)(nil)
)

// NewFallback creates a Fallback with primary as the preferred provider
func NewFallback(primary Translator, primaryName string, retry *resilience.RetryConfig, maxFailures int, resetTimeout time.Duration, logger zerolog.Logger) *Fallback {
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	return &Fallback{
		group: resilience.NewFallbackGroup(primary, primaryName, maxFailures, resetTimeout, logger),
		retry: retry,
	}
}

// NewFromConfig builds the Google then MyMemory provider chain
func NewFromConfig(cfg *config.Config, logger zerolog.Logger) *Fallback {
	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	reset := time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second

	f := NewFallback(NewGoogleTranslator(cfg.GoogleTranslateURL, nil), "google", retry, cfg.CircuitBreakerMaxFailures, reset, logger)
	f.AddFallback("mymemory", NewMyMemoryTranslator(cfg.MyMemoryURL, nil))
	return f
}

// AddFallback registers a provider tried after those already registered
func (f *Fallback) AddFallback(name string, t Translator) {
	f.group.AddFallback(name, t)
}

// Translate asks each healthy provider in turn
func (f *Fallback) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return resilience.ExecuteWithResult(f.group, func(t Translator) (string, error) {
		var out string
		err := resilience.Retry(ctx, func(ctx context.Context) error {
			translated, err := t.Translate(ctx, text, sourceLang, targetLang)
			if err != nil {
				return err
			}
			out = translated
			return nil
		}, f.retry, resilience.IsRetryable)
		return out, err
	})
}

// Ping reports whether at least one provider's circuit is not open
func (f *Fallback) Ping(ctx context.Context) (bool, error) {
	for _, name := range f.group.Names() {
		if f.group.Breaker(name).GetState() != resilience.StateOpen {
			return true, nil
		}
	}
	return false, resilience.ErrAllFailed
}
