package receiver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-webhooks/core"
)

// EventRouter dispatches decoded events to a handler registered for the
// event name. Events without a route go to Fallback, or are acknowledged
// when no fallback is set.
type EventRouter struct {
	mu       sync.RWMutex
	routes   map[core.EventName]EventHandler
	Fallback EventHandler
}

func NewEventRouter() *EventRouter {
	return &EventRouter{routes: map[core.EventName]EventHandler{}}
}

func (r *EventRouter) Handle(event core.EventName, handler EventHandler) error {
	if r == nil {
		return fmt.Errorf("receiver: event router is nil")
	}
	if !event.Valid() {
		return fmt.Errorf("receiver: unknown event name %q", event)
	}
	if handler == nil {
		return fmt.Errorf("receiver: handler for %q is required", event)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.routes == nil {
		r.routes = map[core.EventName]EventHandler{}
	}
	if _, exists := r.routes[event]; exists {
		return fmt.Errorf("receiver: handler for %q already registered", event)
	}
	r.routes[event] = handler
	return nil
}

func (r *EventRouter) HandleFunc(event core.EventName, fn func(context.Context, Event) error) error {
	if fn == nil {
		return fmt.Errorf("receiver: handler for %q is required", event)
	}
	return r.Handle(event, EventHandlerFunc(fn))
}

func (r *EventRouter) Routes() []core.EventName {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.EventName, 0, len(r.routes))
	for name := range r.routes {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *EventRouter) HandleEvent(ctx context.Context, event Event) error {
	if r == nil {
		return internal(nil, "receiver: event router is nil")
	}
	r.mu.RLock()
	handler, ok := r.routes[event.Name]
	r.mu.RUnlock()
	if !ok {
		handler = r.Fallback
	}
	if handler == nil {
		return nil
	}
	return handler.HandleEvent(ctx, event)
}
