package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestDeliver_SuccessSignsExactBody(t *testing.T) {
	sub := testSubscription("sub_1", "https://hooks.example/orders", "")
	h := newTestHarness(t, respondWith(200, "ok"), []Subscription{sub})

	delivery, err := h.service.Deliver(context.Background(), sub, EventOrderCreated, json.RawMessage(`{"id":"o1"}`))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if delivery.Status != DeliveryStatusSuccess || delivery.Attempts != 1 {
		t.Fatalf("expected success with one attempt, got %s/%d", delivery.Status, delivery.Attempts)
	}
	if delivery.DeliveredAt == nil || delivery.StatusCode == nil || *delivery.StatusCode != 200 {
		t.Fatalf("expected delivered timestamp and status code 200")
	}
	if delivery.Response != "ok" {
		t.Fatalf("expected response body to be stored, got %q", delivery.Response)
	}

	req := h.transport.last()
	if req.URL != sub.URL {
		t.Fatalf("expected POST to %s, got %s", sub.URL, req.URL)
	}
	if got := req.Headers[HeaderSignature]; got != Sign(req.Body, sub.Secret) {
		t.Fatalf("expected signature over the sent body, got %s", got)
	}
	if req.Headers[HeaderEvent] != "order.created" {
		t.Fatalf("expected event header, got %q", req.Headers[HeaderEvent])
	}
	if req.Headers[HeaderDeliveryID] != delivery.ID {
		t.Fatalf("expected delivery id header %s, got %s", delivery.ID, req.Headers[HeaderDeliveryID])
	}
	if req.Headers[HeaderUserAgent] != DefaultUserAgent || req.Headers[HeaderContentType] != "application/json" {
		t.Fatalf("expected default user agent and json content type, got %v", req.Headers)
	}
	if req.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", req.Timeout)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if string(envelope["event"]) != `"order.created"` || string(envelope["data"]) != `{"id":"o1"}` {
		t.Fatalf("unexpected envelope %s", req.Body)
	}
	if string(envelope["timestamp"]) != `"2026-03-01T12:00:00.000Z"` {
		t.Fatalf("expected millisecond UTC timestamp, got %s", envelope["timestamp"])
	}
}

func TestDeliver_HTTPFailureRecordsStatusAndSchedule(t *testing.T) {
	sub := testSubscription("sub_1", "https://hooks.example/orders", "")
	h := newTestHarness(t, respondWith(500, "boom"), []Subscription{sub})

	delivery, err := h.service.Deliver(context.Background(), sub, EventOrderCreated, json.RawMessage(`{}`))
	if err == nil {
		t.Fatalf("expected http failure")
	}
	if !IsDeliveryFailure(err) {
		t.Fatalf("expected delivery failure error, got %v", err)
	}
	if delivery.Status != DeliveryStatusFailed || delivery.Attempts != 1 {
		t.Fatalf("expected failed with one attempt, got %s/%d", delivery.Status, delivery.Attempts)
	}
	if delivery.StatusCode == nil || *delivery.StatusCode != 500 || delivery.Response != "boom" {
		t.Fatalf("expected status 500 and body to be recorded")
	}
	want := h.clock.Now().Add(DefaultRetryInitialBackoff)
	if delivery.NextAttemptAt == nil || !delivery.NextAttemptAt.Equal(want) {
		t.Fatalf("expected next attempt at %s, got %v", want, delivery.NextAttemptAt)
	}
	if h.transport.last().Headers[HeaderSignature] != Sign(h.transport.last().Body, sub.Secret) {
		t.Fatalf("expected failed attempts to be signed too")
	}
}

type hintFunc func(resp TransportResponse, now time.Time) (time.Time, bool)

func (f hintFunc) RetryAt(resp TransportResponse, now time.Time) (time.Time, bool) {
	return f(resp, now)
}

func TestDeliver_RetryHintDefersScheduleOnlyWhenLater(t *testing.T) {
	sub := testSubscription("sub_1", "https://hooks.example/orders", "")
	var hint time.Duration
	hinter := hintFunc(func(resp TransportResponse, now time.Time) (time.Time, bool) {
		if resp.StatusCode != 429 {
			return time.Time{}, false
		}
		return now.Add(hint), true
	})
	h := newTestHarness(t, respondWith(429, "slow down"), []Subscription{sub}, WithRetryHinter(hinter))

	hint = 10 * time.Minute
	delivery, err := h.service.Deliver(context.Background(), sub, EventOrderCreated, json.RawMessage(`{}`))
	if err == nil {
		t.Fatalf("expected http failure")
	}
	want := h.clock.Now().Add(hint)
	if delivery.NextAttemptAt == nil || !delivery.NextAttemptAt.Equal(want) {
		t.Fatalf("expected hinted next attempt %s, got %v", want, delivery.NextAttemptAt)
	}

	hint = time.Second
	delivery, _ = h.service.Deliver(context.Background(), sub, EventOrderCreated, json.RawMessage(`{}`))
	want = h.clock.Now().Add(DefaultRetryInitialBackoff)
	if delivery.NextAttemptAt == nil || !delivery.NextAttemptAt.Equal(want) {
		t.Fatalf("expected backoff to win over a shorter hint, got %v", delivery.NextAttemptAt)
	}
}

func TestDeliver_TransportErrorRecordsNullStatus(t *testing.T) {
	sub := testSubscription("sub_1", "https://hooks.example/orders", "")
	h := newTestHarness(t, func(context.Context, TransportRequest) (TransportResponse, error) {
		return TransportResponse{}, errors.New("dial tcp: connection refused")
	}, []Subscription{sub})

	delivery, err := h.service.Deliver(context.Background(), sub, EventOrderCreated, nil)
	if err == nil || !IsDeliveryFailure(err) {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if delivery.StatusCode != nil {
		t.Fatalf("expected nil status code, got %d", *delivery.StatusCode)
	}
	if !strings.Contains(delivery.Response, "connection refused") {
		t.Fatalf("expected error text as response, got %q", delivery.Response)
	}
}

func TestDeliver_TruncatesResponseByCharacters(t *testing.T) {
	sub := testSubscription("sub_1", "https://hooks.example/orders", "")
	long := strings.Repeat("é", 1500)
	h := newTestHarness(t, respondWith(502, long), []Subscription{sub})

	delivery, _ := h.service.Deliver(context.Background(), sub, EventOrderCreated, nil)
	if got := utf8.RuneCountInString(delivery.Response); got != DefaultResponseBodyLimit {
		t.Fatalf("expected %d characters, got %d", DefaultResponseBodyLimit, got)
	}
	if !utf8.ValidString(delivery.Response) {
		t.Fatalf("expected truncated response to stay valid utf-8")
	}
	if h.transport.last().ResponseLimit != int64(DefaultResponseBodyLimit*utf8.UTFMax) {
		t.Fatalf("expected bounded response read, got %d", h.transport.last().ResponseLimit)
	}
}

func TestDeliver_AttemptIgnoresCallerCancellation(t *testing.T) {
	sub := testSubscription("sub_1", "https://hooks.example/orders", "")
	h := newTestHarness(t, func(ctx context.Context, _ TransportRequest) (TransportResponse, error) {
		if ctx.Err() != nil {
			return TransportResponse{}, ctx.Err()
		}
		if _, ok := ctx.Deadline(); !ok {
			return TransportResponse{}, errors.New("missing deadline")
		}
		return TransportResponse{StatusCode: 204}, nil
	}, []Subscription{sub})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	delivery, err := h.service.Deliver(ctx, sub, EventOrderCreated, nil)
	if err != nil {
		t.Fatalf("expected detached attempt to succeed, got %v", err)
	}
	if delivery.Status != DeliveryStatusSuccess {
		t.Fatalf("expected success, got %s", delivery.Status)
	}
}

func TestDeliver_TimeoutIsTreatedAsFailure(t *testing.T) {
	sub := testSubscription("sub_1", "https://hooks.example/slow", "")
	cfg := DefaultConfig()
	cfg.Delivery.Timeout = 20 * time.Millisecond
	h := newTestHarness(t, func(ctx context.Context, _ TransportRequest) (TransportResponse, error) {
		<-ctx.Done()
		return TransportResponse{}, ctx.Err()
	}, []Subscription{sub}, withRuntimeConfig(cfg))

	delivery, err := h.service.Deliver(context.Background(), sub, EventOrderCreated, nil)
	if err == nil || !IsDeliveryFailure(err) {
		t.Fatalf("expected timeout to surface as transport failure, got %v", err)
	}
	if delivery.Status != DeliveryStatusFailed || delivery.StatusCode != nil {
		t.Fatalf("expected failed delivery without status code, got %s", delivery.Status)
	}
}

func TestDeliver_RejectsInvalidPayload(t *testing.T) {
	sub := testSubscription("sub_1", "https://hooks.example/orders", "")
	h := newTestHarness(t, respondWith(200, ""), []Subscription{sub})

	_, err := h.service.Deliver(context.Background(), sub, EventOrderCreated, json.RawMessage(`{broken`))
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.ledger.writes() != 0 || h.transport.calls() != 0 {
		t.Fatalf("expected no ledger writes or http calls")
	}
}

func TestTruncateResponse(t *testing.T) {
	if got := truncateResponse("short", 10); got != "short" {
		t.Fatalf("expected short body to be untouched, got %q", got)
	}
	if got := truncateResponse("abcdef", 3); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := truncateResponse("a\xffb", 10); !utf8.ValidString(got) {
		t.Fatalf("expected invalid bytes to be replaced, got %q", got)
	}
}
