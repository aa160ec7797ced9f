package webhooks

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/goliatone/go-webhooks/core"
	"github.com/goliatone/go-webhooks/receiver"
)

// HandlerPack groups receiver handlers contributed by one downstream module.
type HandlerPack struct {
	Name     string
	Handlers map[core.EventName]receiver.EventHandler
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	handlerPacks map[string]HandlerPack
	bundles      map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		handlerPacks: map[string]HandlerPack{},
		bundles:      map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterHandlerPack(pack HandlerPack) error {
	if h == nil {
		return fmt.Errorf("webhooks: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("webhooks: handler pack name is required")
	}
	if len(pack.Handlers) == 0 {
		return fmt.Errorf("webhooks: handler pack %q has no handlers", name)
	}

	normalized := HandlerPack{
		Name:     name,
		Handlers: make(map[core.EventName]receiver.EventHandler, len(pack.Handlers)),
	}
	for event, handler := range pack.Handlers {
		if !event.Valid() {
			return fmt.Errorf("webhooks: handler pack %q names unknown event %q", name, event)
		}
		if handler == nil {
			return fmt.Errorf("webhooks: handler pack %q has nil handler for %q", name, event)
		}
		normalized.Handlers[event] = handler
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlerPacks[name]; exists {
		return fmt.Errorf("webhooks: handler pack %q already registered", name)
	}
	h.handlerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("webhooks: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("webhooks: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("webhooks: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("webhooks: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyHandlerPacks registers every pack on router in pack-name order. Two
// packs routing the same event is an error.
func (h *ExtensionHooks) ApplyHandlerPacks(router *receiver.EventRouter) error {
	if h == nil {
		return nil
	}
	if router == nil {
		return fmt.Errorf("webhooks: event router is required")
	}

	for _, pack := range h.HandlerPacks() {
		for _, event := range slices.Sorted(maps.Keys(pack.Handlers)) {
			if err := router.Handle(event, pack.Handlers[event]); err != nil {
				return fmt.Errorf("webhooks: apply handler pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("webhooks: command/query service is required")
	}

	h.mu.RLock()
	factories := maps.Clone(h.bundles)
	h.mu.RUnlock()

	result := make(map[string]any, len(factories))
	for _, name := range slices.Sorted(maps.Keys(factories)) {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, fmt.Errorf("webhooks: build command/query bundle %q: %w", name, err)
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) HandlerPacks() []HandlerPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]HandlerPack, 0, len(h.handlerPacks))
	for _, name := range slices.Sorted(maps.Keys(h.handlerPacks)) {
		pack := h.handlerPacks[name]
		out = append(out, HandlerPack{Name: pack.Name, Handlers: maps.Clone(pack.Handlers)})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Sorted(maps.Keys(h.bundles))
}
