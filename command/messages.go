package command

import (
	"strings"

	"github.com/goliatone/go-webhooks/core"
)

const (
	TypeCreateSubscription = "webhooks.command.subscription.create"
	TypeUpdateSubscription = "webhooks.command.subscription.update"
	TypeDeleteSubscription = "webhooks.command.subscription.delete"
	TypeRotateSecret       = "webhooks.command.subscription.rotate_secret"
	TypePublish            = "webhooks.command.publish"
	TypeRetryDelivery      = "webhooks.command.delivery.retry"
	TypeRetryDeadLettered  = "webhooks.command.delivery.retry_dead_letter"
	TypeRunRetrySweep      = "webhooks.command.delivery.retry_sweep"
)

type CreateSubscriptionMessage struct {
	Request core.CreateSubscriptionRequest
}

func (CreateSubscriptionMessage) Type() string { return TypeCreateSubscription }

func (m CreateSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.Request.URL) == "" {
		return commandValidationError("url", "url is required")
	}
	if len(m.Request.Events) == 0 {
		return commandValidationError("events", "at least one event is required")
	}
	return validateEvents(m.Request.Events)
}

type UpdateSubscriptionMessage struct {
	Request core.UpdateSubscriptionRequest
}

func (UpdateSubscriptionMessage) Type() string { return TypeUpdateSubscription }

func (m UpdateSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.Request.ID) == "" {
		return commandValidationError("id", "subscription id is required")
	}
	if m.Request.URL != nil && strings.TrimSpace(*m.Request.URL) == "" {
		return commandValidationError("url", "url cannot be blank")
	}
	if m.Request.Events != nil {
		if len(m.Request.Events) == 0 {
			return commandValidationError("events", "at least one event is required")
		}
		return validateEvents(m.Request.Events)
	}
	return nil
}

type DeleteSubscriptionMessage struct {
	SubscriptionID string
}

func (DeleteSubscriptionMessage) Type() string { return TypeDeleteSubscription }

func (m DeleteSubscriptionMessage) Validate() error {
	return requireID("subscription_id", m.SubscriptionID)
}

type RotateSecretMessage struct {
	SubscriptionID string
}

func (RotateSecretMessage) Type() string { return TypeRotateSecret }

func (m RotateSecretMessage) Validate() error {
	return requireID("subscription_id", m.SubscriptionID)
}

// PublishMessage fans an event out to matching subscriptions. With Async set
// the publication is enqueued as a job instead of delivered inline.
type PublishMessage struct {
	Event   core.EventName
	Payload any
	ScopeID string
	Async   bool
}

func (PublishMessage) Type() string { return TypePublish }

func (m PublishMessage) Validate() error {
	return validateEvents([]core.EventName{m.Event})
}

type RetryDeliveryMessage struct {
	DeliveryID string
}

func (RetryDeliveryMessage) Type() string { return TypeRetryDelivery }

func (m RetryDeliveryMessage) Validate() error {
	return requireID("delivery_id", m.DeliveryID)
}

type RetryDeadLetteredMessage struct {
	DeliveryID string
}

func (RetryDeadLetteredMessage) Type() string { return TypeRetryDeadLettered }

func (m RetryDeadLetteredMessage) Validate() error {
	return requireID("delivery_id", m.DeliveryID)
}

// RunRetrySweepMessage retries due deliveries; a zero Limit uses the
// configured batch size.
type RunRetrySweepMessage struct {
	Limit int
}

func (RunRetrySweepMessage) Type() string { return TypeRunRetrySweep }

func (m RunRetrySweepMessage) Validate() error {
	if m.Limit < 0 {
		return commandValidationError("limit", "limit must be >= 0")
	}
	return nil
}

func requireID(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return commandValidationError(field, field+" is required")
	}
	return nil
}

func validateEvents(events []core.EventName) error {
	for _, event := range events {
		if _, err := core.ParseEventName(string(event)); err != nil {
			return commandValidationError("event", err.Error())
		}
	}
	return nil
}
