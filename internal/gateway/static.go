package gateway

import (
	"context"
	"fmt"
	"sync"
)

// StaticHandler serves one method of a static backend in-process.
type StaticHandler func(ctx context.Context, params map[string]any) (map[string]any, error)

// StaticBackend serves operations from in-process handlers. Used for
// development and for exercising the full pipeline in tests without a
// network upstream.
type StaticBackend struct {
	name string

	mu       sync.RWMutex
	handlers map[string]StaticHandler
}

// NewStaticBackend creates an empty static backend.
func NewStaticBackend(name string) *StaticBackend {
	return &StaticBackend{
		name:     name,
		handlers: make(map[string]StaticHandler),
	}
}

// Handle registers the handler for a method name.
func (b *StaticBackend) Handle(method string, h StaticHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[method] = h
}

func (b *StaticBackend) Name() string { return b.name }

func (b *StaticBackend) Dispatch(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	b.mu.RLock()
	h, ok := b.handlers[method]
	b.mu.RUnlock()
	if !ok {
		return nil, &BackendError{
			Backend: b.name,
			Cause:   fmt.Errorf("method %q not found", method),
		}
	}
	return h(ctx, params)
}

func (b *StaticBackend) Ping(context.Context) error { return nil }

func (b *StaticBackend) Close() error { return nil }
