package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhooks/core"
)

const defaultPollInterval = time.Second

// ErrNoJob is returned by ProcessNext when the dequeuer yields nothing.
var ErrNoJob = errors.New("gojob: no job available")

type Runner interface {
	Run(ctx context.Context, msg *core.JobExecutionMessage) error
}

type attemptNacker interface {
	NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error
}

// Consumer drains webhook jobs from a queue and runs them. Failed jobs are
// nacked with a delay from Backoff; attempts are counted per job key for the
// lifetime of the consumer.
type Consumer struct {
	Dequeuer     core.JobDequeuer
	Runner       Runner
	Hook         core.JobWorkerHook
	Backoff      core.BackoffPolicy
	PollInterval time.Duration
	Logger       core.Logger
	Now          func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

func NewConsumer(dequeuer core.JobDequeuer, runner Runner, backoff core.BackoffPolicy) *Consumer {
	return &Consumer{
		Dequeuer:     dequeuer,
		Runner:       runner,
		Backoff:      backoff,
		PollInterval: defaultPollInterval,
		attempts:     map[string]int{},
	}
}

// ProcessNext handles a single job. Dequeue errors are returned unchanged;
// a failed job is reported through nack and the hook, not the return value.
func (c *Consumer) ProcessNext(ctx context.Context) error {
	if c == nil || c.Dequeuer == nil || c.Runner == nil {
		return fmt.Errorf("gojob: consumer requires dequeuer and runner")
	}
	delivery, err := c.Dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return ErrNoJob
	}
	msg := delivery.Message()
	key := jobKey(msg)
	attempt := c.nextAttempt(key)
	startedAt := c.now()

	event := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: startedAt}
	c.onStart(ctx, event)

	runErr := c.Runner.Run(ctx, msg)
	event.Duration = c.now().Sub(startedAt)
	if runErr == nil {
		c.forget(key)
		c.onSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	event.Err = runErr
	event.Delay = c.delay(attempt)
	opts := core.JobNackOptions{
		Delay:   event.Delay,
		Requeue: true,
		Reason:  runErr.Error(),
	}
	glog.Ensure(c.Logger).Warn("webhook job failed",
		"job_id", jobID(msg),
		"attempt", attempt,
		"delay", event.Delay.String(),
		"error", runErr.Error(),
	)
	c.onFailure(ctx, event)
	c.onRetry(ctx, event)
	if nacker, ok := delivery.(attemptNacker); ok {
		return nacker.NackForAttempt(ctx, opts, attempt)
	}
	return delivery.Nack(ctx, opts)
}

// Run processes jobs until ctx is cancelled. Dequeue errors back off for
// PollInterval before the next poll.
func (c *Consumer) Run(ctx context.Context) error {
	interval := defaultPollInterval
	if c != nil && c.PollInterval > 0 {
		interval = c.PollInterval
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := c.ProcessNext(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if c == nil || c.Dequeuer == nil || c.Runner == nil {
				return err
			}
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

func (c *Consumer) nextAttempt(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts == nil {
		c.attempts = map[string]int{}
	}
	c.attempts[key]++
	return c.attempts[key]
}

func (c *Consumer) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, key)
}

func (c *Consumer) delay(attempt int) time.Duration {
	if c.Backoff == nil {
		return 0
	}
	now := c.now()
	delay := c.Backoff.NextAttemptAt(attempt, now).Sub(now)
	if delay < 0 {
		return 0
	}
	return delay
}

func (c *Consumer) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Consumer) onStart(ctx context.Context, event core.JobWorkerEvent) {
	if c.Hook != nil {
		c.Hook.OnStart(ctx, event)
	}
}

func (c *Consumer) onSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if c.Hook != nil {
		c.Hook.OnSuccess(ctx, event)
	}
}

func (c *Consumer) onFailure(ctx context.Context, event core.JobWorkerEvent) {
	if c.Hook != nil {
		c.Hook.OnFailure(ctx, event)
	}
}

func (c *Consumer) onRetry(ctx context.Context, event core.JobWorkerEvent) {
	if c.Hook != nil {
		c.Hook.OnRetry(ctx, event)
	}
}

func jobKey(msg *core.JobExecutionMessage) string {
	if msg == nil {
		return ""
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID) + ":" + fmt.Sprint(msg.Parameters)
}

func jobID(msg *core.JobExecutionMessage) string {
	if msg == nil {
		return ""
	}
	return msg.JobID
}

var _ Runner = (*core.JobRunner)(nil)
