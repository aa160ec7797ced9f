package receiver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhooks/core"
)

const (
	DefaultClaimLease  = 30 * time.Second
	DefaultMaxAttempts = core.DefaultMaxAttempts
)

// Request is an inbound delivery as seen by the consumer.
type Request struct {
	Headers map[string]string
	Body    []byte
}

// Header looks up a header case-insensitively.
func (r Request) Header(key string) string {
	key = strings.TrimSpace(key)
	for existing, value := range r.Headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

type Result struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

// Event is a verified, decoded delivery handed to an EventHandler.
type Event struct {
	DeliveryID string
	Name       core.EventName
	Data       json.RawMessage
	Timestamp  time.Time
	Attempt    int
}

type EventHandler interface {
	HandleEvent(ctx context.Context, event Event) error
}

type EventHandlerFunc func(ctx context.Context, event Event) error

func (f EventHandlerFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type DeliveryIDExtractor func(req Request) (string, error)

// Processor verifies, de-duplicates and dispatches inbound deliveries.
type Processor struct {
	Verifier    Verifier
	Ledger      ClaimLedger
	Handler     EventHandler
	ExtractID   DeliveryIDExtractor
	ClaimLease  time.Duration
	MaxAttempts int
	Logger      core.Logger
}

func NewProcessor(verifier Verifier, ledger ClaimLedger, handler EventHandler) *Processor {
	return &Processor{
		Verifier:    verifier,
		Ledger:      ledger,
		Handler:     handler,
		ExtractID:   HeaderDeliveryIDExtractor(core.HeaderDeliveryID),
		ClaimLease:  DefaultClaimLease,
		MaxAttempts: DefaultMaxAttempts,
	}
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if p == nil || p.Handler == nil || p.Ledger == nil {
		return Result{}, internal(nil, "receiver: processor requires handler and ledger")
	}

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			return Result{
				Accepted:   false,
				StatusCode: StatusCode(err),
				Metadata:   map[string]any{"rejected": true},
			}, err
		}
	}

	extractor := p.ExtractID
	if extractor == nil {
		extractor = HeaderDeliveryIDExtractor(core.HeaderDeliveryID)
	}
	deliveryID, err := extractor(req)
	if err != nil {
		return Result{StatusCode: StatusCode(err)}, err
	}

	event, err := DecodeEvent(req)
	if err != nil {
		return Result{StatusCode: StatusCode(err)}, err
	}
	event.DeliveryID = deliveryID

	claim, claimed, err := p.Ledger.Claim(ctx, deliveryID, p.claimLease())
	if err != nil {
		return Result{StatusCode: StatusCode(err)}, err
	}
	if !claimed {
		return Result{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"delivery_id": deliveryID,
				"status":      claim.Status,
				"deduped":     true,
			},
		}, nil
	}
	event.Attempt = claim.Attempts

	if handleErr := p.Handler.HandleEvent(ctx, event); handleErr != nil {
		failed, failErr := p.Ledger.Fail(ctx, claim.ClaimID, handleErr, p.maxAttempts())
		status := ClaimStatusRetryReady
		if failErr == nil {
			status = failed.Status
		}
		p.logger().Warn("webhook receiver handler failed",
			"delivery_id", deliveryID,
			"event", string(event.Name),
			"attempt", claim.Attempts,
			"status", status,
			"error", handleErr.Error(),
		)
		retryErr := receiverWrapError(
			handleErr,
			goerrors.CategoryExternal,
			fmt.Sprintf("receiver: handler failed for delivery %s", deliveryID),
			http.StatusInternalServerError,
			ErrorRetryable,
			map[string]any{"delivery_id": deliveryID, "status": status},
		)
		return Result{
			Accepted:   false,
			StatusCode: http.StatusInternalServerError,
			Metadata:   map[string]any{"delivery_id": deliveryID, "status": status},
		}, retryErr
	}

	if err := p.Ledger.Complete(ctx, claim.ClaimID); err != nil {
		return Result{StatusCode: StatusCode(err)}, err
	}
	return Result{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"delivery_id": deliveryID,
			"event":       string(event.Name),
			"status":      ClaimStatusProcessed,
		},
	}, nil
}

// DecodeEvent parses the envelope and checks it against X-Webhook-Event
// when that header is present.
func DecodeEvent(req Request) (Event, error) {
	var envelope core.Envelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return Event{}, receiverWrapError(err, goerrors.CategoryBadInput, "receiver: invalid envelope",
			http.StatusBadRequest, ErrorBadRequest, nil)
	}
	if strings.TrimSpace(string(envelope.Event)) == "" {
		return Event{}, badRequest("receiver: envelope event is required", nil)
	}
	if header := req.Header(core.HeaderEvent); header != "" && header != string(envelope.Event) {
		return Event{}, badRequest("receiver: event header does not match envelope", map[string]any{
			"header":   header,
			"envelope": string(envelope.Event),
		})
	}
	event := Event{
		Name: envelope.Event,
		Data: append(json.RawMessage(nil), envelope.Data...),
	}
	if ts := strings.TrimSpace(envelope.Timestamp); ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Event{}, receiverWrapError(err, goerrors.CategoryBadInput, "receiver: invalid envelope timestamp",
				http.StatusBadRequest, ErrorBadRequest, map[string]any{"timestamp": ts})
		}
		event.Timestamp = parsed.UTC()
	}
	return event, nil
}

func HeaderDeliveryIDExtractor(headers ...string) DeliveryIDExtractor {
	keys := append([]string(nil), headers...)
	return func(req Request) (string, error) {
		for _, key := range keys {
			if value := req.Header(key); value != "" {
				return value, nil
			}
		}
		return "", badRequest("receiver: delivery id is required for dedupe", map[string]any{"headers": keys})
	}
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return DefaultClaimLease
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (p *Processor) logger() core.Logger {
	return glog.Ensure(p.Logger)
}
