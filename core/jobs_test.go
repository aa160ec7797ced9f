package core

import (
	"context"
	"errors"
	"testing"
)

type captureEnqueuer struct {
	messages []*JobExecutionMessage
	err      error
}

func (e *captureEnqueuer) Enqueue(_ context.Context, msg *JobExecutionMessage) error {
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

func TestPublishAsync_EnqueuesSerializedPayload(t *testing.T) {
	enqueuer := &captureEnqueuer{}
	h := newTestHarness(t, respondWith(200, ""), nil, WithJobEnqueuer(enqueuer))

	err := h.service.PublishAsync(context.Background(), EventPaymentCompleted, map[string]any{"amount": 10}, " seller_1 ")
	if err != nil {
		t.Fatalf("publish async: %v", err)
	}
	if len(enqueuer.messages) != 1 {
		t.Fatalf("expected one enqueued message, got %d", len(enqueuer.messages))
	}
	msg := enqueuer.messages[0]
	if msg.JobID != JobIDPublish {
		t.Fatalf("expected %s, got %s", JobIDPublish, msg.JobID)
	}
	if msg.Parameters["payload"] != `{"amount":10}` || msg.Parameters["scope_id"] != "seller_1" {
		t.Fatalf("unexpected parameters %v", msg.Parameters)
	}
	if h.transport.calls() != 0 {
		t.Fatalf("expected no inline dispatch")
	}
}

func TestPublishAsync_Errors(t *testing.T) {
	h := newTestHarness(t, respondWith(200, ""), nil)
	if err := h.service.PublishAsync(context.Background(), EventOrderCreated, nil, ""); err == nil {
		t.Fatalf("expected missing enqueuer to fail")
	}

	enqueuer := &captureEnqueuer{err: errors.New("queue down")}
	h = newTestHarness(t, respondWith(200, ""), nil, WithJobEnqueuer(enqueuer))
	if err := h.service.PublishAsync(context.Background(), EventOrderCreated, nil, ""); err == nil {
		t.Fatalf("expected enqueue failure to propagate")
	}
}

func TestJobRunner_RunsPublishAndRetry(t *testing.T) {
	sub := testSubscription("sub_1", "https://hooks.example/orders", "seller_1")
	enqueuer := &captureEnqueuer{}
	h := newTestHarness(t, respondWith(500, ""), []Subscription{sub}, WithJobEnqueuer(enqueuer))
	runner := NewJobRunner(h.service)
	ctx := context.Background()

	if err := h.service.PublishAsync(ctx, EventOrderCreated, map[string]any{"id": "o1"}, "seller_1"); err != nil {
		t.Fatalf("publish async: %v", err)
	}
	if err := runner.Run(ctx, enqueuer.messages[0]); err != nil {
		t.Fatalf("run publish: %v", err)
	}
	delivery := h.ledger.only()
	if delivery.Attempts != 1 || string(delivery.Payload) != `{"id":"o1"}` {
		t.Fatalf("expected one attempt with the queued payload, got %d %s", delivery.Attempts, delivery.Payload)
	}

	if err := h.service.EnqueueRetry(ctx, delivery.ID, false); err != nil {
		t.Fatalf("enqueue retry: %v", err)
	}
	retryMsg := enqueuer.messages[1]
	if retryMsg.JobID != JobIDRetry || retryMsg.IdempotencyKey != JobIDRetry+":"+delivery.ID {
		t.Fatalf("unexpected retry message %+v", retryMsg)
	}
	if err := runner.Run(ctx, retryMsg); err != nil {
		t.Fatalf("run retry: %v", err)
	}
	stored, _ := h.ledger.Get(ctx, delivery.ID)
	if stored.Attempts != 2 {
		t.Fatalf("expected two attempts, got %d", stored.Attempts)
	}

	if err := runner.Run(ctx, &JobExecutionMessage{JobID: JobIDRetrySweep, Parameters: map[string]any{"limit": 5}}); err != nil {
		t.Fatalf("run sweep: %v", err)
	}
	if err := runner.Run(ctx, &JobExecutionMessage{JobID: "webhooks.unknown"}); !IsValidation(err) {
		t.Fatalf("expected unsupported job to be rejected, got %v", err)
	}
}
