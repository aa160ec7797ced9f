package receiver

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-webhooks/core"
)

func TestEventRouter_DispatchesByEventName(t *testing.T) {
	router := NewEventRouter()
	var got []string
	if err := router.HandleFunc(core.EventOrderCreated, func(_ context.Context, event Event) error {
		got = append(got, "created:"+event.DeliveryID)
		return nil
	}); err != nil {
		t.Fatalf("register order.created: %v", err)
	}
	boom := errors.New("boom")
	if err := router.HandleFunc(core.EventPaymentFailed, func(context.Context, Event) error {
		return boom
	}); err != nil {
		t.Fatalf("register payment.failed: %v", err)
	}

	if err := router.HandleEvent(context.Background(), Event{DeliveryID: "d1", Name: core.EventOrderCreated}); err != nil {
		t.Fatalf("dispatch order.created: %v", err)
	}
	if err := router.HandleEvent(context.Background(), Event{Name: core.EventPaymentFailed}); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if err := router.HandleEvent(context.Background(), Event{Name: core.EventInventoryLow}); err != nil {
		t.Fatalf("expected unrouted event to be acknowledged, got %v", err)
	}
	if len(got) != 1 || got[0] != "created:d1" {
		t.Fatalf("unexpected dispatch log: %#v", got)
	}

	routes := router.Routes()
	if len(routes) != 2 || routes[0] != core.EventOrderCreated || routes[1] != core.EventPaymentFailed {
		t.Fatalf("expected sorted routes, got %#v", routes)
	}
}

func TestEventRouter_RejectsDuplicateAndUnknownRoutes(t *testing.T) {
	router := NewEventRouter()
	noop := EventHandlerFunc(func(context.Context, Event) error { return nil })
	if err := router.Handle(core.EventOrderShipped, noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := router.Handle(core.EventOrderShipped, noop); err == nil {
		t.Fatalf("expected duplicate route error")
	}
	if err := router.Handle("order.teleported", noop); err == nil {
		t.Fatalf("expected unknown event error")
	}
	if err := router.Handle(core.EventOrderUpdated, nil); err == nil {
		t.Fatalf("expected nil handler error")
	}
}

func TestEventRouter_FallbackReceivesUnroutedEvents(t *testing.T) {
	router := NewEventRouter()
	var fallback []core.EventName
	router.Fallback = EventHandlerFunc(func(_ context.Context, event Event) error {
		fallback = append(fallback, event.Name)
		return nil
	})
	if err := router.HandleEvent(context.Background(), Event{Name: core.EventSellerApproved}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(fallback) != 1 || fallback[0] != core.EventSellerApproved {
		t.Fatalf("expected fallback dispatch, got %#v", fallback)
	}
}
