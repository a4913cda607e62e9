package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/drumcoach/internal/schedule"
	"github.com/MrWong99/drumcoach/pkg/audio"
)

// ErrSourceNotRegistered is returned by [Registry.CreateSource] when no
// factory has been registered under the requested source name.
var ErrSourceNotRegistered = errors.New("config: source not registered")

// SourceRequest carries everything a factory may need to build a source for
// one session.
type SourceRequest struct {
	Input InputConfig

	// Notes is the session schedule. The synthetic source renders it.
	Notes []schedule.Note
}

// SourceFactory builds a fresh [audio.Source] for one session.
type SourceFactory func(SourceRequest) (audio.Source, error)

// Registry maps source names to their factories. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]SourceFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]SourceFactory)}
}

// RegisterSource registers a source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// CreateSource builds a source using the factory registered under
// req.Input.Source. Returns [ErrSourceNotRegistered] if there is none.
func (r *Registry) CreateSource(req SourceRequest) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[req.Input.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotRegistered, req.Input.Source)
	}
	return factory(req)
}

// SourceNames returns the registered names, sorted.
func (r *Registry) SourceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
