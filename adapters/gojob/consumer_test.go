package gojob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-webhooks/core"
	"github.com/goliatone/go-webhooks/store/memory"
)

func TestConsumer_PublishAsyncRoundTripThroughQueue(t *testing.T) {
	ctx := context.Background()
	q := &fifoQueue{}

	var mu sync.Mutex
	var posted []core.TransportRequest
	transport := transportFunc(func(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
		mu.Lock()
		posted = append(posted, req)
		mu.Unlock()
		return core.TransportResponse{StatusCode: 200}, nil
	})

	subs := memory.NewSubscriptionStore(core.Subscription{
		ID:     "sub_1",
		URL:    "https://hooks.example.com/orders",
		Events: []core.EventName{core.EventOrderCreated},
		Secret: "whsec_consumer_test_secret",
		Active: true,
	})
	svc, err := core.NewService(core.DefaultConfig(),
		core.WithSubscriptionStore(subs),
		core.WithDeliveryLedger(memory.NewLedger()),
		core.WithTransport(transport),
		core.WithJobEnqueuer(NewEnqueuer(q)),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := svc.PublishAsync(ctx, core.EventOrderCreated, map[string]any{"order_id": "o_1"}, ""); err != nil {
		t.Fatalf("publish async: %v", err)
	}
	if len(posted) != 0 {
		t.Fatalf("expected no inline delivery, got %d", len(posted))
	}

	consumer := NewConsumer(NewDequeuer(q, NackPolicy{MaxAttempts: 3}), core.NewJobRunner(svc), nil)
	if err := consumer.ProcessNext(ctx); err != nil {
		t.Fatalf("process next: %v", err)
	}
	if len(posted) != 1 {
		t.Fatalf("expected one delivery after consuming job, got %d", len(posted))
	}
	if posted[0].Headers[core.HeaderEvent] != string(core.EventOrderCreated) {
		t.Fatalf("expected event header, got %#v", posted[0].Headers)
	}
	if q.acked != 1 {
		t.Fatalf("expected job to be acked, got %d", q.acked)
	}
	if err := consumer.ProcessNext(ctx); !errors.Is(err, ErrNoJob) {
		t.Fatalf("expected empty queue, got %v", err)
	}
}

func TestConsumer_FailedJobIsNackedWithBackoffAndHook(t *testing.T) {
	ctx := context.Background()
	q := &fifoQueue{}
	q.push(&job.ExecutionMessage{JobID: JobIDRetry, IdempotencyKey: "webhooks.retry:del_1"})
	q.push(&job.ExecutionMessage{JobID: JobIDRetry, IdempotencyKey: "webhooks.retry:del_1"})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hook := &capturingHook{}
	consumer := NewConsumer(
		NewDequeuer(q, NackPolicy{MaxAttempts: 2, DeadLetterOnMax: true}),
		runnerFunc(func(context.Context, *core.JobExecutionMessage) error { return errors.New("subscriber down") }),
		core.NewExponentialBackoffPolicy(core.RetryConfig{InitialBackoff: time.Second, MaxBackoff: time.Minute, Factor: 2}),
	)
	consumer.Hook = hook
	consumer.Now = func() time.Time { return now }

	if err := consumer.ProcessNext(ctx); err != nil {
		t.Fatalf("process first: %v", err)
	}
	if !q.lastNack.Requeue || q.lastNack.DeadLetter {
		t.Fatalf("expected requeue on first failure, got %#v", q.lastNack)
	}
	if q.lastNack.Delay <= 0 {
		t.Fatalf("expected positive backoff delay, got %s", q.lastNack.Delay)
	}
	if hook.last.Attempt != 1 || hook.last.Err == nil {
		t.Fatalf("unexpected hook event: %#v", hook.last)
	}

	if err := consumer.ProcessNext(ctx); err != nil {
		t.Fatalf("process second: %v", err)
	}
	if q.lastNack.Requeue || !q.lastNack.DeadLetter {
		t.Fatalf("expected dead-letter at max attempts, got %#v", q.lastNack)
	}
	if hook.last.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", hook.last.Attempt)
	}
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := &fifoQueue{}
	consumer := NewConsumer(NewDequeuer(q, NackPolicy{}), runnerFunc(func(context.Context, *core.JobExecutionMessage) error {
		return nil
	}), nil)
	consumer.PollInterval = time.Millisecond

	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected consumer to stop after cancel")
	}
}

type transportFunc func(context.Context, core.TransportRequest) (core.TransportResponse, error)

func (f transportFunc) Post(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	return f(ctx, req)
}

type runnerFunc func(context.Context, *core.JobExecutionMessage) error

func (f runnerFunc) Run(ctx context.Context, msg *core.JobExecutionMessage) error {
	return f(ctx, msg)
}

type fifoQueue struct {
	mu       sync.Mutex
	items    []*job.ExecutionMessage
	acked    int
	lastNack queue.NackOptions
}

func (q *fifoQueue) push(msg *job.ExecutionMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, msg)
}

func (q *fifoQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	q.push(msg)
	return nil
}

func (q *fifoQueue) Dequeue(context.Context) (queue.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, ErrNoJob
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return &fifoDelivery{queue: q, msg: msg}, nil
}

type fifoDelivery struct {
	queue *fifoQueue
	msg   *job.ExecutionMessage
}

func (d *fifoDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *fifoDelivery) Ack(context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.acked++
	return nil
}

func (d *fifoDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.lastNack = opts
	return nil
}
