package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// EncodePayload turns a publish payload into JSON. Raw JSON is kept verbatim.
func EncodePayload(payload any) (json.RawMessage, error) {
	switch typed := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if !json.Valid(typed) {
			return nil, ValidationError("payload", "payload must be valid JSON")
		}
		return append(json.RawMessage(nil), typed...), nil
	case []byte:
		if !json.Valid(typed) {
			return nil, ValidationError("payload", "payload must be valid JSON")
		}
		return append(json.RawMessage(nil), typed...), nil
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return nil, ValidationError("payload", fmt.Sprintf("payload cannot be serialized: %v", err))
		}
		return encoded, nil
	}
}

// Publish fans an event out to every matching subscription and waits for all
// attempts. Individual delivery failures are counted, not returned; only
// registry failures and invalid input produce an error.
func (s *Service) Publish(ctx context.Context, event EventName, payload any, scopeID string) (result PublishResult, err error) {
	startedAt := s.now()
	scopeID = strings.TrimSpace(scopeID)
	fields := map[string]any{
		"event":    string(event),
		"scope_id": scopeID,
	}
	defer func() {
		fields["total"] = result.Total
		fields["delivered"] = result.Delivered
		fields["failed"] = result.Failed
		s.observeOperation(ctx, startedAt, "publish", err, fields)
	}()

	if !event.Valid() {
		return PublishResult{}, s.mapError(ValidationError("event", fmt.Sprintf("unknown event %q", event)))
	}
	body, err := EncodePayload(payload)
	if err != nil {
		return PublishResult{}, s.mapError(err)
	}
	if s.registry == nil {
		return PublishResult{}, s.mapError(fmt.Errorf("core: subscription registry is not configured"))
	}

	subs, err := s.registry.Match(ctx, event, scopeID)
	if err != nil {
		return PublishResult{}, s.mapError(err)
	}
	if len(subs) == 0 {
		s.logDebug(ctx, "no webhook subscriptions matched", map[string]any{
			"event":    string(event),
			"scope_id": scopeID,
		})
		return PublishResult{}, nil
	}

	delivered, failed := s.fanOut(ctx, subs, event, body)
	return PublishResult{
		Delivered: delivered,
		Failed:    failed,
		Total:     len(subs),
	}, nil
}

func (s *Service) fanOut(ctx context.Context, subs []Subscription, event EventName, body json.RawMessage) (int, int) {
	var delivered, failed atomic.Int64
	detached := context.WithoutCancel(ctx)

	group := new(errgroup.Group)
	if limit := s.config.Delivery.MaxConcurrency; limit > 0 {
		group.SetLimit(limit)
	}
	for _, sub := range subs {
		sub := sub.Clone()
		group.Go(func() error {
			defer func() {
				if recovered := recover(); recovered != nil {
					failed.Add(1)
					s.logError(ctx, "webhook delivery panicked", map[string]any{
						"event":           string(event),
						"subscription_id": sub.ID,
						"panic":           fmt.Sprint(recovered),
					})
				}
			}()
			outcome, err := s.deliver(detached, sub, event, body)
			if err != nil {
				failed.Add(1)
				s.logError(ctx, "webhook delivery could not be recorded", map[string]any{
					"event":           string(event),
					"subscription_id": sub.ID,
					"error":           err.Error(),
				})
				return nil
			}
			if outcome.Err != nil {
				failed.Add(1)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = group.Wait()
	return int(delivered.Load()), int(failed.Load())
}
