package query

import (
	"strings"

	"github.com/goliatone/go-webhooks/core"
)

const (
	TypeGetSubscription   = "webhooks.query.subscription.get"
	TypeListSubscriptions = "webhooks.query.subscription.list"
	TypeGetDelivery       = "webhooks.query.delivery.get"
	TypeListDeliveries    = "webhooks.query.delivery.list"
	TypeListDeadLettered  = "webhooks.query.delivery.dead_lettered"
)

type GetSubscriptionMessage struct {
	SubscriptionID string
}

func (GetSubscriptionMessage) Type() string { return TypeGetSubscription }

func (m GetSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.SubscriptionID) == "" {
		return queryValidationError("subscription_id", "subscription id is required")
	}
	return nil
}

type ListSubscriptionsMessage struct {
	Filter core.SubscriptionFilter
}

func (ListSubscriptionsMessage) Type() string { return TypeListSubscriptions }

func (m ListSubscriptionsMessage) Validate() error {
	if m.Filter.Event != "" && !m.Filter.Event.Valid() {
		return queryValidationError("event", "unknown event name")
	}
	return validatePage(m.Filter.Page)
}

type GetDeliveryMessage struct {
	DeliveryID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return queryValidationError("delivery_id", "delivery id is required")
	}
	return nil
}

type ListDeliveriesMessage struct {
	Filter core.DeliveryFilter
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	if m.Filter.Status != "" && !m.Filter.Status.Valid() {
		return queryValidationError("status", "unknown delivery status")
	}
	return validatePage(m.Filter.Page)
}

type ListDeadLetteredMessage struct {
	Page core.PageRequest
}

func (ListDeadLetteredMessage) Type() string { return TypeListDeadLettered }

func (m ListDeadLetteredMessage) Validate() error {
	return validatePage(m.Page)
}

func validatePage(page core.PageRequest) error {
	if page.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if page.Offset < 0 {
		return queryValidationError("offset", "offset must be >= 0")
	}
	return nil
}
