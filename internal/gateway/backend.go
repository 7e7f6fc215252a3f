package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wardenmcp/warden/internal/model"
)

// Backend forwards a single operation call to one upstream protocol server.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name returns the backend's registered name.
	Name() string

	// Dispatch invokes method with params on the upstream and returns the
	// decoded result object.
	Dispatch(ctx context.Context, method string, params map[string]any) (map[string]any, error)

	// Ping checks reachability for health reporting.
	Ping(ctx context.Context) error

	// Close releases held connections.
	Close() error
}

// Factory builds a Backend from its configuration.
type Factory func(cfg model.BackendConfig) (Backend, error)

// Registry manages backend factories and active backend instances.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	active    map[string]Backend
}

// NewRegistry creates a registry with the built-in backend kinds registered.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		active:    make(map[string]Backend),
	}
	r.RegisterKind(model.BackendHTTP, func(cfg model.BackendConfig) (Backend, error) {
		return NewHTTPBackend(cfg)
	})
	r.RegisterKind(model.BackendMCP, func(cfg model.BackendConfig) (Backend, error) {
		return NewMCPBackend(cfg)
	})
	return r
}

// RegisterKind registers a factory for a backend kind. Later registrations
// replace earlier ones.
func (r *Registry) RegisterKind(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Connect instantiates the backend described by cfg and stores it under its
// name, replacing and closing any previous instance with that name.
func (r *Registry) Connect(cfg model.BackendConfig) (Backend, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported backend kind %q", cfg.Kind)
	}

	b, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", cfg.Name, err)
	}

	r.mu.Lock()
	if prev, ok := r.active[cfg.Name]; ok {
		prev.Close()
	}
	r.active[cfg.Name] = b
	r.mu.Unlock()
	return b, nil
}

// Register stores an already-constructed backend, used for the static
// in-process kind.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.active[b.Name()]; ok {
		prev.Close()
	}
	r.active[b.Name()] = b
}

// Get returns the active backend by name.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.active[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return b, nil
}

// Disconnect closes and removes the named backend.
func (r *Registry) Disconnect(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.active[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	delete(r.active, name)
	return b.Close()
}

// Names returns the sorted names of all active backends.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.active))
	for name := range r.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll closes every active backend and clears the registry. Returns the
// last error encountered.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lastErr error
	for name, b := range r.active {
		if err := b.Close(); err != nil {
			lastErr = err
		}
		delete(r.active, name)
	}
	return lastErr
}
