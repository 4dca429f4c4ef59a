package tangguh

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds named clients so an application configures each upstream
// API once and fetches it anywhere. Clients created through the registry
// share one OAuth2 token manager, so a credential used by several clients
// refreshes once. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client

	tokens  *OAuth2TokenManager
	metrics *MetricsCollector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		tokens:  NewOAuth2TokenManager(nil),
	}
}

// NewRegistryFromConfig creates a registry and one client per entry in cfg.
// opts apply to every created client. Creation stops at the first invalid
// client config.
func NewRegistryFromConfig(cfg *RegistryConfig, opts ...Option) (*Registry, error) {
	r := NewRegistry()

	names := make([]string, 0, len(cfg.Clients))
	for name := range cfg.Clients {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		clientCfg := cfg.Clients[name]
		if _, err := r.CreateClient(name, clientCfg, opts...); err != nil {
			r.Close()
			return nil, fmt.Errorf("tangguh: creating client %q: %w", name, err)
		}
	}
	return r, nil
}

// WithSharedMetrics makes every subsequently created client report into mc.
// Token fetches through the shared manager are labeled "registry" since the
// triggering client is unknown once concurrent fetches coalesce.
func (r *Registry) WithSharedMetrics(mc *MetricsCollector) *Registry {
	r.mu.Lock()
	r.metrics = mc
	r.mu.Unlock()
	r.tokens.InstrumentWith(mc, "registry")
	return r
}

// CreateClient builds a client from cfg and registers it under name.
// Registering a name twice is an error; use RemoveClient first to replace.
func (r *Registry) CreateClient(name string, cfg Config, opts ...Option) (*Client, error) {
	if name == "" {
		return nil, &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "client name must not be empty",
			Retryable: false,
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[name]; ok {
		return nil, fmt.Errorf("tangguh: client %q: %w", name, ErrClientExists)
	}

	cfg.Name = name
	shared := []Option{WithTokenManager(r.tokens)}
	if r.metrics != nil {
		shared = append(shared, WithMetricsCollector(r.metrics))
	}
	client, err := New(cfg, append(shared, opts...)...)
	if err != nil {
		return nil, err
	}

	r.clients[name] = client
	return client, nil
}

// GetClient returns the client registered under name.
func (r *Registry) GetClient(name string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("tangguh: client %q: %w", name, ErrClientNotFound)
	}
	return client, nil
}

// RemoveClient closes and unregisters the client under name. Removing an
// unknown name is a no-op.
func (r *Registry) RemoveClient(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[name]; ok {
		client.Close()
		delete(r.clients, name)
	}
}

// ListClients returns the registered names in sorted order.
func (r *Registry) ListClients() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close closes every registered client and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, client := range r.clients {
		client.Close()
		delete(r.clients, name)
	}
}
