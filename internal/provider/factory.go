package provider

import (
	"fmt"

	"facturio/internal/config"
	"facturio/internal/port"
)

// Factory is a function that creates a Provider from a backend config.
type Factory func(cfg *config.ProviderBackendConfig) (port.Provider, error)

// registry of provider factories, populated explicitly via Register from
// cmd/server so that the backend packages stay import-cycle free.
var factories = map[string]Factory{}

// Register registers a provider factory by backend kind.
func Register(kind string, factory Factory) {
	factories[kind] = factory
}

// New creates a Provider from a backend config using the registered factory.
func New(cfg *config.ProviderBackendConfig) (port.Provider, error) {
	factory, ok := factories[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown provider kind: %s", cfg.Kind)
	}
	return factory(cfg)
}
