package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/lexidrill/lexidrill/pkg/recognizer"
)

// Recognizer implements [recognizer.Provider] with automatic failover across
// multiple speech backends. Each backend has its own circuit breaker, so a
// recognition server that stopped answering is skipped instead of stalling
// every utterance while a healthy fallback can serve.
type Recognizer struct {
	group    *FallbackGroup[recognizer.Provider]
	backends []recognizer.Provider
}

// Compile-time interface assertion.
var _ recognizer.Provider = (*Recognizer)(nil)

// NewRecognizer creates a [Recognizer] with primary as the preferred backend.
func NewRecognizer(primary recognizer.Provider, primaryName string, cfg CircuitBreakerConfig) *Recognizer {
	return &Recognizer{
		group:    NewFallbackGroup(primary, primaryName, cfg),
		backends: []recognizer.Provider{primary},
	}
}

// AddFallback registers an additional recognizer backend as a fallback.
func (r *Recognizer) AddFallback(name string, backend recognizer.Provider) {
	r.group.AddFallback(name, backend)
	r.backends = append(r.backends, backend)
}

// Start opens a recognition instance against the first healthy backend. If
// the primary fails to start, subsequent fallbacks are tried in order.
func (r *Recognizer) Start(ctx context.Context, grammar recognizer.Grammar, cfg recognizer.StreamConfig) (recognizer.Instance, error) {
	return ExecuteWithResult(r.group, func(p recognizer.Provider) (recognizer.Instance, error) {
		return p.Start(ctx, grammar, cfg)
	})
}

// Close releases every backend that holds resources.
func (r *Recognizer) Close() error {
	var errs []error
	for _, b := range r.backends {
		closer, ok := b.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend: %w", err))
		}
	}
	return errors.Join(errs...)
}
