package gocommand

import (
	"fmt"

	"github.com/goliatone/go-command/runner"
	webhooks "github.com/goliatone/go-webhooks"
	webhookscommand "github.com/goliatone/go-webhooks/command"
	"github.com/goliatone/go-webhooks/core"
	webhooksquery "github.com/goliatone/go-webhooks/query"
)

// RegisterFacade puts every command and query of facade on bus. On failure
// the bus is closed, so nothing stays half registered.
func RegisterFacade(bus *Bus, facade *webhooks.Facade, runnerOpts ...runner.Option) error {
	if bus == nil {
		return fmt.Errorf("gocommand: bus is required")
	}
	if facade == nil {
		return fmt.Errorf("gocommand: facade is required")
	}
	commands := facade.Commands()
	queries := facade.Queries()

	steps := []func() error{
		func() error {
			return HandleCommand[webhookscommand.CreateSubscriptionMessage](bus, commands.CreateSubscription, runnerOpts...)
		},
		func() error {
			return HandleCommand[webhookscommand.UpdateSubscriptionMessage](bus, commands.UpdateSubscription, runnerOpts...)
		},
		func() error {
			return HandleCommand[webhookscommand.DeleteSubscriptionMessage](bus, commands.DeleteSubscription, runnerOpts...)
		},
		func() error {
			return HandleCommand[webhookscommand.RotateSecretMessage](bus, commands.RotateSecret, runnerOpts...)
		},
		func() error {
			return HandleCommand[webhookscommand.PublishMessage](bus, commands.Publish, runnerOpts...)
		},
		func() error {
			return HandleCommand[webhookscommand.RetryDeliveryMessage](bus, commands.RetryDelivery, runnerOpts...)
		},
		func() error {
			return HandleCommand[webhookscommand.RetryDeadLetteredMessage](bus, commands.RetryDeadLettered, runnerOpts...)
		},
		func() error {
			return HandleCommand[webhookscommand.RunRetrySweepMessage](bus, commands.RunRetrySweep, runnerOpts...)
		},
		func() error {
			return HandleQuery[webhooksquery.GetSubscriptionMessage, core.Subscription](bus, queries.GetSubscription, runnerOpts...)
		},
		func() error {
			return HandleQuery[webhooksquery.ListSubscriptionsMessage, core.SubscriptionPage](bus, queries.ListSubscriptions, runnerOpts...)
		},
		func() error {
			return HandleQuery[webhooksquery.GetDeliveryMessage, core.Delivery](bus, queries.GetDelivery, runnerOpts...)
		},
		func() error {
			return HandleQuery[webhooksquery.ListDeliveriesMessage, core.DeliveryPage](bus, queries.ListDeliveries, runnerOpts...)
		},
		func() error {
			return HandleQuery[webhooksquery.ListDeadLetteredMessage, core.DeliveryPage](bus, queries.ListDeadLettered, runnerOpts...)
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			bus.Close()
			return err
		}
	}
	return nil
}
