package core

import (
	"fmt"
	"sort"
	"strings"
)

// EventName identifies a marketplace domain event. Only names declared in
// this file are accepted by subscriptions and by Publish.
type EventName string

const (
	EventOrderCreated        EventName = "order.created"
	EventOrderUpdated        EventName = "order.updated"
	EventOrderCancelled      EventName = "order.cancelled"
	EventOrderShipped        EventName = "order.shipped"
	EventOrderDelivered      EventName = "order.delivered"
	EventPaymentCompleted    EventName = "payment.completed"
	EventPaymentFailed       EventName = "payment.failed"
	EventPaymentRefunded     EventName = "payment.refunded"
	EventInventoryLow        EventName = "inventory.low"
	EventInventoryOutOfStock EventName = "inventory.out_of_stock"
	EventProductCreated      EventName = "product.created"
	EventProductUpdated      EventName = "product.updated"
	EventProductDeleted      EventName = "product.deleted"
	EventSellerApproved      EventName = "seller.approved"
	EventSettlementCompleted EventName = "settlement.completed"
)

var knownEvents = map[EventName]struct{}{
	EventOrderCreated:        {},
	EventOrderUpdated:        {},
	EventOrderCancelled:      {},
	EventOrderShipped:        {},
	EventOrderDelivered:      {},
	EventPaymentCompleted:    {},
	EventPaymentFailed:       {},
	EventPaymentRefunded:     {},
	EventInventoryLow:        {},
	EventInventoryOutOfStock: {},
	EventProductCreated:      {},
	EventProductUpdated:      {},
	EventProductDeleted:      {},
	EventSellerApproved:      {},
	EventSettlementCompleted: {},
}

func (e EventName) String() string {
	return string(e)
}

// Valid reports whether e is part of the event catalog.
func (e EventName) Valid() bool {
	_, ok := knownEvents[e]
	return ok
}

// KnownEvents returns the catalog sorted by name.
func KnownEvents() []EventName {
	out := make([]EventName, 0, len(knownEvents))
	for name := range knownEvents {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func ParseEventName(raw string) (EventName, error) {
	name := EventName(strings.ToLower(strings.TrimSpace(raw)))
	if name == "" {
		return "", fmt.Errorf("core: event name is required")
	}
	if !name.Valid() {
		return "", fmt.Errorf("core: unknown event name %q", raw)
	}
	return name, nil
}

// ParseEventNames parses and de-duplicates raw names, returning them sorted.
func ParseEventNames(raw []string) ([]EventName, error) {
	names := make([]EventName, 0, len(raw))
	for _, value := range raw {
		name, err := ParseEventName(value)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return normalizeEvents(names)
}

func normalizeEvents(events []EventName) ([]EventName, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("core: at least one event is required")
	}
	seen := make(map[EventName]struct{}, len(events))
	out := make([]EventName, 0, len(events))
	for _, event := range events {
		event = EventName(strings.ToLower(strings.TrimSpace(string(event))))
		if !event.Valid() {
			return nil, fmt.Errorf("core: unknown event name %q", event)
		}
		if _, ok := seen[event]; ok {
			continue
		}
		seen[event] = struct{}{}
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// EventStrings converts events to their wire names.
func EventStrings(events []EventName) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		out = append(out, string(event))
	}
	return out
}
