package webhooks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// EventHandler consumes a decoded event. The returned value lands in the
// dispatch outcome in handler order.
type EventHandler func(ctx context.Context, event Event) (any, error)

type registeredHandler struct {
	id      int
	handler EventHandler
}

// Registration identifies one registered handler so it can be removed.
type Registration struct {
	registry  *Registry
	eventType string
	catchAll  bool
	id        int
}

// Deregister removes the handler. Removing twice is harmless.
func (r *Registration) Deregister() {
	if r == nil || r.registry == nil {
		return
	}
	r.registry.remove(r)
	r.registry = nil
}

// Registry holds event handlers. Typed handlers run before catch-all
// handlers, each group in registration order.
type Registry struct {
	mu       sync.RWMutex
	seq      int
	handlers map[string][]registeredHandler
	catchAll []registeredHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string][]registeredHandler{}}
}

// On registers handler for one event type.
func (r *Registry) On(eventType string, handler EventHandler) (*Registration, error) {
	if r == nil {
		return nil, fmt.Errorf("webhooks: registry is nil")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, fmt.Errorf("webhooks: event type is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("webhooks: handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = map[string][]registeredHandler{}
	}
	r.seq++
	r.handlers[eventType] = append(r.handlers[eventType], registeredHandler{id: r.seq, handler: handler})
	return &Registration{registry: r, eventType: eventType, id: r.seq}, nil
}

// OnAny registers handler for every event type. Catch-all handlers run after
// the typed handlers.
func (r *Registry) OnAny(handler EventHandler) (*Registration, error) {
	if r == nil {
		return nil, fmt.Errorf("webhooks: registry is nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("webhooks: handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.catchAll = append(r.catchAll, registeredHandler{id: r.seq, handler: handler})
	return &Registration{registry: r, catchAll: true, id: r.seq}, nil
}

// Dispatch invokes every handler registered for the event's type, then every
// catch-all handler, in registration order. The first handler error stops
// dispatch and propagates unchanged alongside the results gathered so far.
func (r *Registry) Dispatch(ctx context.Context, event Event) ([]any, error) {
	if r == nil {
		return nil, fmt.Errorf("webhooks: registry is nil")
	}
	if event == nil {
		return nil, fmt.Errorf("webhooks: event is required")
	}

	r.mu.RLock()
	run := make([]registeredHandler, 0, len(r.handlers[event.Type()])+len(r.catchAll))
	run = append(run, r.handlers[event.Type()]...)
	run = append(run, r.catchAll...)
	r.mu.RUnlock()

	results := make([]any, 0, len(run))
	for _, entry := range run {
		result, err := entry.handler(ctx, event)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// EventTypes lists event types with at least one typed handler, sorted.
func (r *Registry) EventTypes() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for eventType, handlers := range r.handlers {
		if len(handlers) > 0 {
			types = append(types, eventType)
		}
	}
	sort.Strings(types)
	return types
}

func (r *Registry) remove(registration *Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if registration.catchAll {
		r.catchAll = removeHandler(r.catchAll, registration.id)
		return
	}
	remaining := removeHandler(r.handlers[registration.eventType], registration.id)
	if len(remaining) == 0 {
		delete(r.handlers, registration.eventType)
		return
	}
	r.handlers[registration.eventType] = remaining
}

func removeHandler(handlers []registeredHandler, id int) []registeredHandler {
	remaining := handlers[:0]
	for _, entry := range handlers {
		if entry.id != id {
			remaining = append(remaining, entry)
		}
	}
	return remaining
}
