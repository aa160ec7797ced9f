package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	HeaderContentType = "Content-Type"
	HeaderUserAgent   = "User-Agent"
	HeaderEvent       = "X-Webhook-Event"
	HeaderSignature   = "X-Webhook-Signature"
	HeaderDeliveryID  = "X-Webhook-Delivery-Id"

	envelopeTimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Envelope is the JSON body posted to subscribers.
type Envelope struct {
	Event     EventName       `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// EncodeEnvelope serializes the envelope once; the result is what gets
// signed and sent.
func EncodeEnvelope(event EventName, payload json.RawMessage, at time.Time) ([]byte, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	body, err := json.Marshal(Envelope{
		Event:     event,
		Data:      payload,
		Timestamp: at.UTC().Format(envelopeTimeLayout),
	})
	if err != nil {
		return nil, fmt.Errorf("core: encode envelope: %w", err)
	}
	return body, nil
}

type attemptOutcome struct {
	Delivery Delivery
	Err      error
}

// Deliver records a new pending delivery for sub and performs its first
// attempt. A failed attempt is returned as a transport or HTTP error along
// with the persisted delivery.
func (s *Service) Deliver(ctx context.Context, sub Subscription, event EventName, payload json.RawMessage) (delivery Delivery, err error) {
	startedAt := s.now()
	fields := map[string]any{
		"event":           string(event),
		"subscription_id": sub.ID,
		"scope_id":        sub.ScopeID,
	}
	defer func() {
		fields["delivery_id"] = delivery.ID
		s.observeOperation(ctx, startedAt, "deliver", err, fields)
	}()

	outcome, err := s.deliver(ctx, sub, event, payload)
	if err != nil {
		return Delivery{}, s.mapError(err)
	}
	if outcome.Err != nil {
		return outcome.Delivery, outcome.Err
	}
	return outcome.Delivery, nil
}

func (s *Service) deliver(ctx context.Context, sub Subscription, event EventName, payload json.RawMessage) (attemptOutcome, error) {
	if s == nil || s.deliveryLedger == nil {
		return attemptOutcome{}, fmt.Errorf("core: delivery ledger is not configured")
	}
	if strings.TrimSpace(sub.ID) == "" {
		return attemptOutcome{}, ValidationError("subscription_id", "subscription id is required")
	}
	if !event.Valid() {
		return attemptOutcome{}, ValidationError("event", fmt.Sprintf("unknown event %q", event))
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return attemptOutcome{}, ValidationError("payload", "payload must be valid JSON")
	}

	now := s.now()
	pending := Delivery{
		ID:             s.newID(),
		SubscriptionID: sub.ID,
		Event:          event,
		Payload:        append(json.RawMessage(nil), payload...),
		Status:         DeliveryStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	pending.Lease(s.leaseUntil(now))
	created, err := s.deliveryLedger.Create(ctx, pending)
	if err != nil {
		return attemptOutcome{}, err
	}
	return s.attempt(ctx, sub, created)
}

// attempt performs one HTTP attempt for an existing delivery and writes the
// outcome with a single conditional ledger update. The returned error is
// structural; the attempt failure travels in the outcome.
func (s *Service) attempt(ctx context.Context, sub Subscription, delivery Delivery) (attemptOutcome, error) {
	if s.transport == nil {
		return attemptOutcome{}, fmt.Errorf("core: transport is not configured")
	}
	if _, err := validateEndpoint(sub.URL); err != nil {
		return attemptOutcome{}, err
	}
	detached := context.WithoutCancel(ctx)
	cfg := s.config.Delivery

	startedAt := s.now()
	body, err := EncodeEnvelope(delivery.Event, delivery.Payload, startedAt)
	if err != nil {
		return attemptOutcome{}, err
	}
	request := TransportRequest{
		URL: sub.URL,
		Headers: map[string]string{
			HeaderContentType: "application/json",
			HeaderUserAgent:   cfg.UserAgent,
			HeaderEvent:       string(delivery.Event),
			HeaderSignature:   Sign(body, sub.Secret),
			HeaderDeliveryID:  delivery.ID,
		},
		Body:          body,
		Timeout:       cfg.Timeout,
		ResponseLimit: int64(cfg.ResponseBodyLimit) * utf8.UTFMax,
	}

	attemptCtx, cancel := context.WithTimeout(detached, cfg.Timeout)
	response, postErr := s.transport.Post(attemptCtx, request)
	cancel()

	finishedAt := s.now()
	expectedAttempts := delivery.Attempts
	updated := delivery.Clone()
	var attemptErr error
	switch {
	case postErr == nil && response.StatusCode >= 200 && response.StatusCode < 300:
		err = updated.RecordSuccess(response.StatusCode, truncateResponse(string(response.Body), cfg.ResponseBodyLimit), finishedAt)
	case postErr == nil:
		code := response.StatusCode
		attemptErr = HTTPError(code, sub.URL)
		err = updated.RecordFailure(
			&code,
			truncateResponse(string(response.Body), cfg.ResponseBodyLimit),
			finishedAt,
			cfg.MaxAttempts,
			s.nextAttemptAt(delivery.Attempts+1, finishedAt, &response),
		)
	default:
		attemptErr = TransportError(postErr, sub.URL)
		err = updated.RecordFailure(
			nil,
			truncateResponse(postErr.Error(), cfg.ResponseBodyLimit),
			finishedAt,
			cfg.MaxAttempts,
			s.nextAttemptAt(delivery.Attempts+1, finishedAt, nil),
		)
	}
	if err != nil {
		return attemptOutcome{}, InvalidStateError(delivery.ID, delivery.Status, err.Error())
	}

	saved, err := s.deliveryLedger.Update(detached, updated, expectedAttempts)
	if err != nil {
		return attemptOutcome{}, err
	}
	s.observeAttempt(ctx, saved, finishedAt.Sub(startedAt), attemptErr)
	return attemptOutcome{Delivery: saved, Err: attemptErr}, nil
}

// leaseUntil bounds how long a pending row may wait on its in-flight attempt
// before the sweep treats it as abandoned.
func (s *Service) leaseUntil(now time.Time) time.Time {
	return now.Add(s.config.Delivery.Timeout + DefaultAttemptLeaseGrace)
}

func (s *Service) nextAttemptAt(attempts int, now time.Time, response *TransportResponse) time.Time {
	next := s.backoffPolicy.NextAttemptAt(attempts, now)
	if s.retryHinter == nil || response == nil {
		return next
	}
	if hinted, ok := s.retryHinter.RetryAt(*response, now); ok && hinted.After(next) {
		return hinted
	}
	return next
}

// truncateResponse keeps at most limit characters of body, replacing invalid
// UTF-8 so the result is always storable as text.
func truncateResponse(body string, limit int) string {
	body = strings.ToValidUTF8(body, string(utf8.RuneError))
	if limit <= 0 || utf8.RuneCountInString(body) <= limit {
		return body
	}
	runes := []rune(body)
	return string(runes[:limit])
}

func validateEndpoint(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ValidationError("url", "url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, ValidationError("url", "url is not valid")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if !parsed.IsAbs() || (scheme != "http" && scheme != "https") || parsed.Host == "" {
		return nil, ValidationError("url", "url must be an absolute http or https url")
	}
	return parsed, nil
}
