package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/rehearse/pkg/provider/catalog"
	"github.com/MrWong99/rehearse/pkg/provider/llm"
	"github.com/MrWong99/rehearse/pkg/provider/stt"
	"github.com/MrWong99/rehearse/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	catalog map[string]func(ProviderEntry) (catalog.Source, error)
	llm     map[string]func(ProviderEntry) (llm.Provider, error)
	stt     map[string]func(ProviderEntry) (stt.Provider, error)
	tts     map[string]func(ProviderEntry) (tts.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		catalog: make(map[string]func(ProviderEntry) (catalog.Source, error)),
		llm:     make(map[string]func(ProviderEntry) (llm.Provider, error)),
		stt:     make(map[string]func(ProviderEntry) (stt.Provider, error)),
		tts:     make(map[string]func(ProviderEntry) (tts.Provider, error)),
	}
}

// RegisterCatalog registers a model catalogue factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterCatalog(name string, factory func(ProviderEntry) (catalog.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalog[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateCatalog instantiates a model catalogue using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateCatalog(entry ProviderEntry) (catalog.Source, error) {
	return create(r, r.catalog, "catalog", entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(r, r.stt, "stt", entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, r.tts, "tts", entry)
}

func create[T any](r *Registry, factories map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}
