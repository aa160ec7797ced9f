package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhooks/core"
)

type SubscriptionService interface {
	CreateSubscription(ctx context.Context, req core.CreateSubscriptionRequest) (core.Subscription, error)
	UpdateSubscription(ctx context.Context, req core.UpdateSubscriptionRequest) (core.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	RotateSecret(ctx context.Context, id string) (core.Subscription, error)
}

type DeliveryService interface {
	Publish(ctx context.Context, event core.EventName, payload any, scopeID string) (core.PublishResult, error)
	PublishAsync(ctx context.Context, event core.EventName, payload any, scopeID string) error
	Retry(ctx context.Context, deliveryID string) (core.RetryResult, error)
	RetryDeadLettered(ctx context.Context, deliveryID string) (core.RetryResult, error)
	RetryDue(ctx context.Context, limit int) (core.SweepStats, error)
}

type CreateSubscriptionCommand struct {
	service SubscriptionService
}

func NewCreateSubscriptionCommand(service SubscriptionService) *CreateSubscriptionCommand {
	return &CreateSubscriptionCommand{service: service}
}

func (c *CreateSubscriptionCommand) Execute(ctx context.Context, msg CreateSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.CreateSubscription(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateSubscriptionCommand struct {
	service SubscriptionService
}

func NewUpdateSubscriptionCommand(service SubscriptionService) *UpdateSubscriptionCommand {
	return &UpdateSubscriptionCommand{service: service}
}

func (c *UpdateSubscriptionCommand) Execute(ctx context.Context, msg UpdateSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.UpdateSubscription(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteSubscriptionCommand struct {
	service SubscriptionService
}

func NewDeleteSubscriptionCommand(service SubscriptionService) *DeleteSubscriptionCommand {
	return &DeleteSubscriptionCommand{service: service}
}

func (c *DeleteSubscriptionCommand) Execute(ctx context.Context, msg DeleteSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	return c.service.DeleteSubscription(ctx, msg.SubscriptionID)
}

type RotateSecretCommand struct {
	service SubscriptionService
}

func NewRotateSecretCommand(service SubscriptionService) *RotateSecretCommand {
	return &RotateSecretCommand{service: service}
}

func (c *RotateSecretCommand) Execute(ctx context.Context, msg RotateSecretMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	out, err := c.service.RotateSecret(ctx, msg.SubscriptionID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PublishCommand struct {
	service DeliveryService
}

func NewPublishCommand(service DeliveryService) *PublishCommand {
	return &PublishCommand{service: service}
}

func (c *PublishCommand) Execute(ctx context.Context, msg PublishMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	if msg.Async {
		return c.service.PublishAsync(ctx, msg.Event, msg.Payload, msg.ScopeID)
	}
	out, err := c.service.Publish(ctx, msg.Event, msg.Payload, msg.ScopeID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryDeliveryCommand struct {
	service DeliveryService
}

func NewRetryDeliveryCommand(service DeliveryService) *RetryDeliveryCommand {
	return &RetryDeliveryCommand{service: service}
}

func (c *RetryDeliveryCommand) Execute(ctx context.Context, msg RetryDeliveryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.Retry(ctx, msg.DeliveryID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryDeadLetteredCommand struct {
	service DeliveryService
}

func NewRetryDeadLetteredCommand(service DeliveryService) *RetryDeadLetteredCommand {
	return &RetryDeadLetteredCommand{service: service}
}

func (c *RetryDeadLetteredCommand) Execute(ctx context.Context, msg RetryDeadLetteredMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.RetryDeadLettered(ctx, msg.DeliveryID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RunRetrySweepCommand struct {
	service DeliveryService
}

func NewRunRetrySweepCommand(service DeliveryService) *RunRetrySweepCommand {
	return &RunRetrySweepCommand{service: service}
}

func (c *RunRetrySweepCommand) Execute(ctx context.Context, msg RunRetrySweepMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: delivery service is required")
	}
	out, err := c.service.RetryDue(ctx, msg.Limit)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
