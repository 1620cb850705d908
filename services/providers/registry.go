package providers

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrProviderNotFound is returned when no adapter is registered for an engine
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate adapter
	ErrProviderAlreadyRegistered = errors.New("provider already registered")

	// ErrUnknownEngine is returned for engines outside the closed set
	ErrUnknownEngine = errors.New("unknown engine")
)

// Registry maps engines to their adapters. An engine is configured exactly
// when it has an adapter registered.
type Registry struct {
	mu        sync.RWMutex
	providers map[Engine]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[Engine]Provider),
	}
}

// RegisterProvider registers an adapter instance
func (r *Registry) RegisterProvider(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	engine := provider.Engine()
	if _, ok := ParseEngine(string(engine)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[engine]; exists {
		return ErrProviderAlreadyRegistered
	}

	r.providers[engine] = provider
	return nil
}

// GetProvider retrieves the adapter for an engine
func (r *Registry) GetProvider(engine Engine) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[engine]
	if !exists {
		return nil, ErrProviderNotFound
	}

	return provider, nil
}

// IsConfigured reports whether an engine can be attempted
func (r *Registry) IsConfigured(engine Engine) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.providers[engine]
	return exists
}

// ConfiguredEngines returns configured engines in canonical order
func (r *Registry) ConfiguredEngines() []Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engines := make([]Engine, 0, len(r.providers))
	for _, e := range AllEngines() {
		if _, ok := r.providers[e]; ok {
			engines = append(engines, e)
		}
	}
	return engines
}

// ConfiguredMap returns engine -> configured for every known engine
func (r *Registry) ConfiguredMap() map[Engine]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := make(map[Engine]bool, len(AllEngines()))
	for _, e := range AllEngines() {
		_, m[e] = r.providers[e]
	}
	return m
}

// Count returns the number of configured engines
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// ProviderBuilder creates an adapter from its configuration
type ProviderBuilder func(config ProviderConfig) (Provider, error)

// RegistryBuilder helps build a registry from per-engine configuration
type RegistryBuilder struct {
	registry *Registry
	builders map[Engine]ProviderBuilder
}

// NewRegistryBuilder creates a new registry builder
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{
		registry: NewRegistry(),
		builders: make(map[Engine]ProviderBuilder),
	}
}

// WithProviderBuilder registers a builder for an engine
func (rb *RegistryBuilder) WithProviderBuilder(engine Engine, builder ProviderBuilder) *RegistryBuilder {
	rb.builders[engine] = builder
	return rb
}

// Build creates adapters for every engine present in configs. Engines left
// out of configs stay unconfigured.
func (rb *RegistryBuilder) Build(configs map[Engine]ProviderConfig) (*Registry, error) {
	for _, engine := range AllEngines() {
		config, ok := configs[engine]
		if !ok {
			continue
		}
		builder, exists := rb.builders[engine]
		if !exists {
			return nil, fmt.Errorf("no builder for provider %s", engine)
		}
		provider, err := builder(config)
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %s: %w", engine, err)
		}
		if err := rb.registry.RegisterProvider(provider); err != nil {
			return nil, fmt.Errorf("failed to register provider %s: %w", engine, err)
		}
	}

	return rb.registry, nil
}
