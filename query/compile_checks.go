package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhooks/core"
)

var (
	_ gocmd.Querier[GetSubscriptionMessage, core.Subscription]       = (*GetSubscriptionQuery)(nil)
	_ gocmd.Querier[ListSubscriptionsMessage, core.SubscriptionPage] = (*ListSubscriptionsQuery)(nil)
	_ gocmd.Querier[GetDeliveryMessage, core.Delivery]               = (*GetDeliveryQuery)(nil)
	_ gocmd.Querier[ListDeliveriesMessage, core.DeliveryPage]        = (*ListDeliveriesQuery)(nil)
	_ gocmd.Querier[ListDeadLetteredMessage, core.DeliveryPage]      = (*ListDeadLetteredQuery)(nil)

	_ SubscriptionReader = (*core.Service)(nil)
	_ DeliveryReader     = (*core.Service)(nil)
)
