package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	JobIDPublish          = "webhooks.publish"
	JobIDRetry            = "webhooks.retry"
	JobIDDeadLetterRetry  = "webhooks.dead_letter.retry"
	JobIDRetrySweep       = "webhooks.retry.sweep"
	jobScriptPathPrefix   = "webhooks/"
	jobParamEvent         = "event"
	jobParamPayload       = "payload"
	jobParamScopeID       = "scope_id"
	jobParamDeliveryID    = "delivery_id"
	jobParamLimit         = "limit"
	jobDedupPolicyReplace = "replace"
)

// PublishAsync enqueues a publish job instead of dispatching inline. The
// payload is serialized before enqueueing so serialization errors surface to
// the caller.
func (s *Service) PublishAsync(ctx context.Context, event EventName, payload any, scopeID string) (err error) {
	startedAt := s.now()
	scopeID = strings.TrimSpace(scopeID)
	fields := map[string]any{"event": string(event), "scope_id": scopeID}
	defer func() {
		s.observeOperation(ctx, startedAt, "publish_async", err, fields)
	}()

	if s == nil || s.jobEnqueuer == nil {
		return s.mapError(fmt.Errorf("core: job enqueuer is not configured"))
	}
	if !event.Valid() {
		return s.mapError(ValidationError("event", fmt.Sprintf("unknown event %q", event)))
	}
	body, err := EncodePayload(payload)
	if err != nil {
		return s.mapError(err)
	}
	if err = s.jobEnqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID:      JobIDPublish,
		ScriptPath: jobScriptPathPrefix + JobIDPublish,
		Parameters: map[string]any{
			jobParamEvent:   string(event),
			jobParamPayload: string(body),
			jobParamScopeID: scopeID,
		},
	}); err != nil {
		return s.mapError(err)
	}
	return nil
}

// EnqueueRetry schedules a retry job for one delivery. Repeated enqueues of
// the same delivery collapse on the idempotency key.
func (s *Service) EnqueueRetry(ctx context.Context, deliveryID string, deadLettered bool) error {
	if s == nil || s.jobEnqueuer == nil {
		return s.mapError(fmt.Errorf("core: job enqueuer is not configured"))
	}
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return s.mapError(ValidationError("delivery_id", "delivery id is required"))
	}
	jobID := JobIDRetry
	if deadLettered {
		jobID = JobIDDeadLetterRetry
	}
	return s.mapError(s.jobEnqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID:          jobID,
		ScriptPath:     jobScriptPathPrefix + jobID,
		Parameters:     map[string]any{jobParamDeliveryID: deliveryID},
		IdempotencyKey: jobID + ":" + deliveryID,
		DedupPolicy:    jobDedupPolicyReplace,
	}))
}

// JobRunner executes webhook job messages against a service.
type JobRunner struct {
	Service *Service
}

func NewJobRunner(service *Service) *JobRunner {
	return &JobRunner{Service: service}
}

func (r *JobRunner) Run(ctx context.Context, msg *JobExecutionMessage) error {
	if r == nil || r.Service == nil {
		return fmt.Errorf("core: job runner service is not configured")
	}
	if msg == nil {
		return fmt.Errorf("core: job message is required")
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDPublish:
		event, err := ParseEventName(stringParam(msg.Parameters, jobParamEvent))
		if err != nil {
			return r.Service.mapError(err)
		}
		payload := json.RawMessage(stringParam(msg.Parameters, jobParamPayload))
		_, err = r.Service.Publish(ctx, event, payload, stringParam(msg.Parameters, jobParamScopeID))
		return err
	case JobIDRetry:
		_, err := r.Service.Retry(ctx, stringParam(msg.Parameters, jobParamDeliveryID))
		return err
	case JobIDDeadLetterRetry:
		_, err := r.Service.RetryDeadLettered(ctx, stringParam(msg.Parameters, jobParamDeliveryID))
		return err
	case JobIDRetrySweep:
		_, err := r.Service.RetryDue(ctx, intParam(msg.Parameters, jobParamLimit))
		return err
	default:
		return r.Service.mapError(ValidationError("job_id", fmt.Sprintf("unsupported job %q", msg.JobID)))
	}
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case []byte:
		return strings.TrimSpace(string(typed))
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func intParam(params map[string]any, key string) int {
	switch typed := params[key].(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case json.Number:
		value, _ := typed.Int64()
		return int(value)
	default:
		return 0
	}
}
