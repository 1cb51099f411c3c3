package source

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrNoAdapter is returned when no adapter serves a URL's root domain.
var ErrNoAdapter = errors.New("no adapter for domain")

// Registry maps root domains to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter to the root domain of domain.
func (r *Registry) Register(domain string, adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter for %q is nil", domain)
	}
	switch adapter.(type) {
	case LinearSource, VolumeSource:
	default:
		return fmt.Errorf("adapter %q implements neither linear nor volume crawling", adapter.Name())
	}
	root, err := RootDomain(domain)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[root]; exists {
		return fmt.Errorf("adapter already registered for %s", root)
	}
	r.adapters[root] = adapter
	return nil
}

// Lookup returns the adapter for rawURL's root domain.
func (r *Registry) Lookup(rawURL string) (Adapter, error) {
	root, err := RootDomain(rawURL)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[root]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, root)
	}
	return adapter, nil
}

// Domains lists the registered root domains in sorted order.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	domains := make([]string, 0, len(r.adapters))
	for domain := range r.adapters {
		domains = append(domains, domain)
	}
	slices.Sort(domains)
	return domains
}
