// Package gojob runs webhook jobs on go-job queues.
package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-webhooks/core"
)

const (
	JobIDPublish         = core.JobIDPublish
	JobIDRetry           = core.JobIDRetry
	JobIDDeadLetterRetry = core.JobIDDeadLetterRetry
	JobIDRetrySweep      = core.JobIDRetrySweep

	scriptPathPrefix = "webhooks/"
)

// IsWebhookJob reports whether jobID is one this package knows how to run.
func IsWebhookJob(jobID string) bool {
	switch strings.TrimSpace(jobID) {
	case JobIDPublish, JobIDRetry, JobIDDeadLetterRetry, JobIDRetrySweep:
		return true
	default:
		return false
	}
}

// NackPolicy decides what happens to a failed webhook job. Delivery jobs go
// to the dead-letter lane once MaxAttempts is reached when DeadLetterOnMax is
// set. Sweep jobs are dropped instead since the next tick enqueues a new one.
type NackPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Decide returns the nack to send, or drop=true when the job should be
// acknowledged and forgotten.
func (p NackPolicy) Decide(jobID string, opts core.JobNackOptions, attempt int) (out core.JobNackOptions, drop bool) {
	out = opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	exhausted := p.MaxAttempts > 0 && attempt >= p.MaxAttempts
	if exhausted && strings.TrimSpace(jobID) == JobIDRetrySweep {
		return out, true
	}
	if out.DeadLetter || (exhausted && p.DeadLetterOnMax) {
		out.DeadLetter = true
		out.Requeue = false
		return out, false
	}
	out.Requeue = true
	return out, false
}

func toExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func fromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// Enqueuer puts webhook jobs on a go-job queue. Unknown job ids are
// rejected and a missing script path is derived from the job id.
type Enqueuer struct {
	target queue.Enqueuer
}

func NewEnqueuer(target queue.Enqueuer) *Enqueuer {
	return &Enqueuer{target: target}
}

func (e *Enqueuer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if e == nil || e.target == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: job message is required")
	}
	if !IsWebhookJob(msg.JobID) {
		return fmt.Errorf("gojob: unsupported webhook job %q", msg.JobID)
	}
	out := toExecutionMessage(msg)
	if out.ScriptPath == "" {
		out.ScriptPath = scriptPathPrefix + out.JobID
	}
	return e.target.Enqueue(ctx, out)
}

// Delivery is one dequeued webhook job.
type Delivery struct {
	raw    queue.Delivery
	policy NackPolicy
}

func (d *Delivery) Message() *core.JobExecutionMessage {
	if d == nil || d.raw == nil {
		return nil
	}
	return fromExecutionMessage(d.raw.Message())
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d == nil || d.raw == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.raw.Ack(ctx)
}

func (d *Delivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

func (d *Delivery) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.raw == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	jobID := ""
	if msg := d.raw.Message(); msg != nil {
		jobID = msg.JobID
	}
	decided, drop := d.policy.Decide(jobID, opts, attempt)
	if drop {
		return d.raw.Ack(ctx)
	}
	return d.raw.Nack(ctx, queue.NackOptions{
		Delay:      decided.Delay,
		Requeue:    decided.Requeue,
		DeadLetter: decided.DeadLetter,
		Reason:     decided.Reason,
	})
}

type Dequeuer struct {
	source queue.Dequeuer
	policy NackPolicy
}

func NewDequeuer(source queue.Dequeuer, policy NackPolicy) *Dequeuer {
	return &Dequeuer{source: source, policy: policy}
}

func (d *Dequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if d == nil || d.source == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	raw, err := d.source.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return &Delivery{raw: raw, policy: d.policy}, nil
}

// HookBridge lets a go-job worker report to a webhook job hook.
type HookBridge struct {
	hook core.JobWorkerHook
}

func NewHookBridge(hook core.JobWorkerHook) *HookBridge {
	return &HookBridge{hook: hook}
}

func (b *HookBridge) OnStart(ctx context.Context, event worker.Event) {
	if b != nil && b.hook != nil {
		b.hook.OnStart(ctx, workerEvent(event))
	}
}

func (b *HookBridge) OnSuccess(ctx context.Context, event worker.Event) {
	if b != nil && b.hook != nil {
		b.hook.OnSuccess(ctx, workerEvent(event))
	}
}

func (b *HookBridge) OnFailure(ctx context.Context, event worker.Event) {
	if b != nil && b.hook != nil {
		b.hook.OnFailure(ctx, workerEvent(event))
	}
}

func (b *HookBridge) OnRetry(ctx context.Context, event worker.Event) {
	if b != nil && b.hook != nil {
		b.hook.OnRetry(ctx, workerEvent(event))
	}
}

func workerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   fromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func copyParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*Enqueuer)(nil)
	_ core.JobDelivery = (*Delivery)(nil)
	_ core.JobDequeuer = (*Dequeuer)(nil)
	_ worker.Hook      = (*HookBridge)(nil)
)
