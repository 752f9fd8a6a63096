package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/picklr-io/sitestack/pkg/provider"
	"github.com/picklr-io/sitestack/providers/aws"
	"github.com/picklr-io/sitestack/providers/memory"
)

// Registry manages the lifecycle of providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
	region    string
	// offline routes every provider name to a single memory provider.
	offline *memory.Provider
}

func NewRegistry(region string) *Registry {
	return &Registry{
		providers: make(map[string]provider.Provider),
		region:    region,
	}
}

// NewOfflineRegistry returns a registry whose providers never leave the process.
func NewOfflineRegistry(region string) *Registry {
	r := NewRegistry(region)
	r.offline = memory.New()
	return r
}

// Register installs p under name, replacing any provider loaded before.
func (r *Registry) Register(name string, p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// LoadProvider initializes, configures and registers a provider.
func (r *Registry) LoadProvider(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	var p provider.Provider
	switch {
	case r.offline != nil:
		p = r.offline
	case name == "aws":
		p = aws.New()
	case name == "memory":
		p = memory.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	if err := p.Configure(ctx, &provider.ConfigureRequest{Region: r.region}); err != nil {
		return fmt.Errorf("failed to configure provider %s: %w", name, err)
	}
	r.providers[name] = p
	return nil
}

// Get returns a registered provider.
func (r *Registry) Get(name string) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}
