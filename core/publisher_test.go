package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestPublish_SingleSubscriptionSuccess(t *testing.T) {
	sub := testSubscription("sub_1", "https://hooks.example/orders", "", EventOrderCreated)
	h := newTestHarness(t, respondWith(200, "ok"), []Subscription{sub})

	result, err := h.service.Publish(context.Background(), EventOrderCreated, map[string]any{"id": "o1"}, "")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result != (PublishResult{Delivered: 1, Failed: 0, Total: 1}) {
		t.Fatalf("expected one delivered, got %+v", result)
	}
	if h.transport.calls() != 1 {
		t.Fatalf("expected one dispatch, got %d", h.transport.calls())
	}
	delivery := h.ledger.only()
	if delivery.Status != DeliveryStatusSuccess || delivery.Attempts != 1 {
		t.Fatalf("expected success with one attempt, got %s/%d", delivery.Status, delivery.Attempts)
	}
	if string(delivery.Payload) != `{"id":"o1"}` {
		t.Fatalf("expected payload to be stored verbatim, got %s", delivery.Payload)
	}
}

func TestPublish_NoMatchesPerformsNoWrites(t *testing.T) {
	sub := testSubscription("sub_1", "https://hooks.example/orders", "", EventPaymentCompleted)
	h := newTestHarness(t, respondWith(200, ""), []Subscription{sub})

	result, err := h.service.Publish(context.Background(), EventOrderCreated, map[string]any{}, "")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result != (PublishResult{}) {
		t.Fatalf("expected zero result, got %+v", result)
	}
	if h.ledger.writes() != 0 || h.transport.calls() != 0 {
		t.Fatalf("expected no ledger writes and no http calls")
	}
}

func TestPublish_CountsPartialFailures(t *testing.T) {
	subs := []Subscription{
		testSubscription("sub_1", "https://ok.example/hook", ""),
		testSubscription("sub_2", "https://down-a.example/hook", ""),
		testSubscription("sub_3", "https://down-b.example/hook", ""),
	}
	h := newTestHarness(t, func(_ context.Context, req TransportRequest) (TransportResponse, error) {
		if strings.Contains(req.URL, "down") {
			return TransportResponse{StatusCode: 500}, nil
		}
		return TransportResponse{StatusCode: 200}, nil
	}, subs)

	result, err := h.service.Publish(context.Background(), EventOrderCreated, map[string]any{"id": "o1"}, "")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result != (PublishResult{Delivered: 1, Failed: 2, Total: 3}) {
		t.Fatalf("expected 1/2/3, got %+v", result)
	}
	page, _ := h.ledger.List(context.Background(), DeliveryFilter{})
	if page.Total != 3 {
		t.Fatalf("expected three independent deliveries, got %d", page.Total)
	}
	for _, req := range h.transport.requests {
		if req.Headers[HeaderSignature] != Sign(req.Body, "whsec_test_secret_"+subIDForURL(subs, req.URL)) {
			t.Fatalf("expected every request to carry a verifiable signature")
		}
	}
}

func TestPublish_IsolatesPanics(t *testing.T) {
	subs := []Subscription{
		testSubscription("sub_1", "https://ok.example/hook", ""),
		testSubscription("sub_2", "https://panic.example/hook", ""),
	}
	h := newTestHarness(t, func(_ context.Context, req TransportRequest) (TransportResponse, error) {
		if strings.Contains(req.URL, "panic") {
			panic("transport exploded")
		}
		return TransportResponse{StatusCode: 200}, nil
	}, subs)

	result, err := h.service.Publish(context.Background(), EventOrderCreated, nil, "")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result != (PublishResult{Delivered: 1, Failed: 1, Total: 2}) {
		t.Fatalf("expected panic to count as a failure, got %+v", result)
	}
}

func TestPublish_ScopeSelection(t *testing.T) {
	subs := []Subscription{
		testSubscription("sub_platform", "https://platform.example/hook", ""),
		testSubscription("sub_seller", "https://seller.example/hook", "seller_1"),
		testSubscription("sub_other", "https://other.example/hook", "seller_2"),
	}
	h := newTestHarness(t, respondWith(200, ""), subs)

	result, err := h.service.Publish(context.Background(), EventOrderCreated, nil, "seller_1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.Total != 1 || h.transport.last().URL != "https://seller.example/hook" {
		t.Fatalf("expected only the seller subscription, got %+v to %s", result, h.transport.last().URL)
	}

	result, err = h.service.Publish(context.Background(), EventOrderCreated, nil, "")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.Total != 1 || h.transport.last().URL != "https://platform.example/hook" {
		t.Fatalf("expected only the platform subscription, got %+v", result)
	}
}

func TestPublish_StructuralErrorsPropagate(t *testing.T) {
	h := newTestHarness(t, respondWith(200, ""), nil)

	if _, err := h.service.Publish(context.Background(), EventName("order.teleported"), nil, ""); !IsValidation(err) {
		t.Fatalf("expected validation error for unknown event, got %v", err)
	}
	if _, err := h.service.Publish(context.Background(), EventOrderCreated, make(chan int), ""); !IsValidation(err) {
		t.Fatalf("expected validation error for unserializable payload, got %v", err)
	}

	h.subs.err = errors.New("registry unavailable")
	if _, err := h.service.Publish(context.Background(), EventOrderCreated, nil, ""); err == nil {
		t.Fatalf("expected registry failure to propagate")
	}
}

func subIDForURL(subs []Subscription, url string) string {
	for _, sub := range subs {
		if sub.URL == url {
			return sub.ID
		}
	}
	return ""
}
