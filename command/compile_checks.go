package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhooks/core"
)

var (
	_ gocmd.Commander[CreateSubscriptionMessage] = (*CreateSubscriptionCommand)(nil)
	_ gocmd.Commander[UpdateSubscriptionMessage] = (*UpdateSubscriptionCommand)(nil)
	_ gocmd.Commander[DeleteSubscriptionMessage] = (*DeleteSubscriptionCommand)(nil)
	_ gocmd.Commander[RotateSecretMessage]       = (*RotateSecretCommand)(nil)
	_ gocmd.Commander[PublishMessage]            = (*PublishCommand)(nil)
	_ gocmd.Commander[RetryDeliveryMessage]      = (*RetryDeliveryCommand)(nil)
	_ gocmd.Commander[RetryDeadLetteredMessage]  = (*RetryDeadLetteredCommand)(nil)
	_ gocmd.Commander[RunRetrySweepMessage]      = (*RunRetrySweepCommand)(nil)

	_ SubscriptionService = (*core.Service)(nil)
	_ DeliveryService     = (*core.Service)(nil)
)
