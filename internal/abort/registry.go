// Package abort provides a process-wide registry of named cancellable operations.
package abort

import (
	"context"
	"sync"

	"github.com/curator-ai/curator/internal/events"
)

// Registry maps operation names to cancellation tokens. Each named operation
// acquires a context before starting model or file work; cancelling the name
// signals every holder of that context.
type Registry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	bus     *events.Bus
}

// NewRegistry creates an abort registry. bus may be nil.
func NewRegistry(bus *events.Bus) *Registry {
	return &Registry{
		cancels: make(map[string]context.CancelFunc),
		bus:     bus,
	}
}

// Register derives a cancellable context for the named operation. If an
// operation with the same name is already registered, its token is cancelled
// and replaced.
func (r *Registry) Register(parent context.Context, name string) context.Context {
	ctx, cancel := context.WithCancel(parent)

	r.mu.Lock()
	if prev, ok := r.cancels[name]; ok {
		prev()
	}
	r.cancels[name] = cancel
	r.mu.Unlock()

	return ctx
}

// Cancel signals the named operation and removes it from the registry.
// Cancelling an unknown name is a no-op.
func (r *Registry) Cancel(name string) {
	r.mu.Lock()
	cancel, ok := r.cancels[name]
	delete(r.cancels, name)
	r.mu.Unlock()

	if !ok {
		return
	}
	cancel()

	if r.bus != nil {
		r.bus.Publish(events.NewTypedEvent(events.SourceRouter, events.OperationAbortedPayload{
			Operation: name,
		}))
	}
}

// CancelAll signals every registered operation and empties the registry.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	cancels := r.cancels
	r.cancels = make(map[string]context.CancelFunc)
	r.mu.Unlock()

	for name, cancel := range cancels {
		cancel()
		if r.bus != nil {
			r.bus.Publish(events.NewTypedEvent(events.SourceRouter, events.OperationAbortedPayload{
				Operation: name,
			}))
		}
	}
}

// Clear removes the named operation without cancelling it. Called when the
// operation completes normally.
func (r *Registry) Clear(name string) {
	r.mu.Lock()
	cancel, ok := r.cancels[name]
	delete(r.cancels, name)
	r.mu.Unlock()

	// The operation already finished; cancel only releases the context.
	if ok {
		cancel()
	}
}

// Active returns the names of currently registered operations.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.cancels))
	for name := range r.cancels {
		names = append(names, name)
	}
	return names
}
