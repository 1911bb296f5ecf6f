package config

import (
	"errors"
	"slices"
	"sync"

	"github.com/lexidrill/lexidrill/pkg/recognizer"
)

// ErrNotRegistered is returned by [Registry.CreateRecognizer] when no factory
// has been registered under the requested backend name.
var ErrNotRegistered = errors.New("config: recognizer backend not registered")

// Registry maps recognizer backend names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	recognizers map[string]func(ProviderEntry) (recognizer.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		recognizers: make(map[string]func(ProviderEntry) (recognizer.Provider, error)),
	}
}

// RegisterRecognizer registers a recognizer backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterRecognizer(name string, factory func(ProviderEntry) (recognizer.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizers[name] = factory
}

// CreateRecognizer instantiates a recognizer provider using the factory
// registered under entry.Name. Returns [ErrNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) CreateRecognizer(entry ProviderEntry) (recognizer.Provider, error) {
	r.mu.RLock()
	factory, ok := r.recognizers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotRegistered
	}
	return factory(entry)
}

// RecognizerNames returns the sorted list of registered backend names.
func (r *Registry) RecognizerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.recognizers))
	for name := range r.recognizers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
