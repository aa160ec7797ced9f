package webhooks

import (
	"context"
	"testing"

	"github.com/goliatone/go-webhooks/core"
	"github.com/goliatone/go-webhooks/receiver"
)

func TestExtensionHooks_RegisterAndApplyHandlerPacks(t *testing.T) {
	hooks := NewExtensionHooks()
	var handled []core.EventName
	record := receiver.EventHandlerFunc(func(_ context.Context, event receiver.Event) error {
		handled = append(handled, event.Name)
		return nil
	})
	pack := HandlerPack{
		Name: "fulfilment",
		Handlers: map[core.EventName]receiver.EventHandler{
			core.EventOrderShipped:   record,
			core.EventOrderDelivered: record,
		},
	}
	if err := hooks.RegisterHandlerPack(pack); err != nil {
		t.Fatalf("register handler pack: %v", err)
	}
	if err := hooks.RegisterHandlerPack(pack); err == nil {
		t.Fatalf("expected duplicate handler pack registration error")
	}

	router := receiver.NewEventRouter()
	if err := hooks.ApplyHandlerPacks(router); err != nil {
		t.Fatalf("apply handler packs: %v", err)
	}
	if err := router.HandleEvent(context.Background(), receiver.Event{Name: core.EventOrderShipped}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(handled) != 1 || handled[0] != core.EventOrderShipped {
		t.Fatalf("expected pack handler dispatch, got %#v", handled)
	}
	if len(router.Routes()) != 2 {
		t.Fatalf("expected two routes, got %#v", router.Routes())
	}
}

func TestExtensionHooks_RejectsInvalidAndOverlappingPacks(t *testing.T) {
	hooks := NewExtensionHooks()
	noop := receiver.EventHandlerFunc(func(context.Context, receiver.Event) error { return nil })
	if err := hooks.RegisterHandlerPack(HandlerPack{
		Name:     "bad",
		Handlers: map[core.EventName]receiver.EventHandler{"order.teleported": noop},
	}); err == nil {
		t.Fatalf("expected unknown event error")
	}
	if err := hooks.RegisterHandlerPack(HandlerPack{Name: "empty"}); err == nil {
		t.Fatalf("expected empty pack error")
	}

	for _, name := range []string{"pack_a", "pack_b"} {
		if err := hooks.RegisterHandlerPack(HandlerPack{
			Name:     name,
			Handlers: map[core.EventName]receiver.EventHandler{core.EventPaymentRefunded: noop},
		}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if err := hooks.ApplyHandlerPacks(receiver.NewEventRouter()); err == nil {
		t.Fatalf("expected overlapping route error")
	}
}

func TestExtensionHooks_CommandQueryBundles(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterCommandQueryBundle("orders_bundle", func(service CommandQueryService) (any, error) {
		return map[string]any{
			"publish_fn":      service.Publish,
			"get_delivery_fn": service.GetDelivery,
		}, nil
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("orders_bundle", func(CommandQueryService) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate bundle registration error")
	}

	bundles, err := hooks.BuildCommandQueryBundles(&stubFacadeService{})
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	if len(bundles) != 1 {
		t.Fatalf("expected one bundle, got %d", len(bundles))
	}
	if _, ok := bundles["orders_bundle"]; !ok {
		t.Fatalf("expected orders_bundle entry in built bundles")
	}
	if names := hooks.BundleNames(); len(names) != 1 || names[0] != "orders_bundle" {
		t.Fatalf("unexpected bundle names: %#v", names)
	}
}
