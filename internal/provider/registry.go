package provider

import (
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"
)

// Options are passed to a Factory when opening an endpoint.
type Options struct {
	Timeout     time.Duration
	ContextSize int
}

// Factory opens a Provider for an endpoint URL.
type Factory func(endpoint string, opts Options) (Provider, error)

var (
	factories = make(map[string]Factory)
	mu        sync.RWMutex
)

// Register binds a URL scheme to a factory. Later registrations replace
// earlier ones.
func Register(scheme string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[scheme] = f
}

// Open selects a factory by the endpoint's scheme.
func Open(endpoint string, opts Options) (Provider, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse model endpoint %q: %w", endpoint, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("model endpoint %q has no scheme", endpoint)
	}

	mu.RLock()
	f, ok := factories[u.Scheme]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no provider registered for scheme %q (known: %v)", u.Scheme, List())
	}
	return f(endpoint, opts)
}

// List returns the registered schemes.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears all registered factories (for testing).
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	factories = make(map[string]Factory)
}
