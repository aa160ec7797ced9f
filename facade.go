package webhooks

import (
	"fmt"

	webhookscommand "github.com/goliatone/go-webhooks/command"
	webhooksquery "github.com/goliatone/go-webhooks/query"
)

type CommandQueryService interface {
	webhookscommand.SubscriptionService
	webhookscommand.DeliveryService
	webhooksquery.SubscriptionReader
	webhooksquery.DeliveryReader
}

type Commands struct {
	CreateSubscription *webhookscommand.CreateSubscriptionCommand
	UpdateSubscription *webhookscommand.UpdateSubscriptionCommand
	DeleteSubscription *webhookscommand.DeleteSubscriptionCommand
	RotateSecret       *webhookscommand.RotateSecretCommand
	Publish            *webhookscommand.PublishCommand
	RetryDelivery      *webhookscommand.RetryDeliveryCommand
	RetryDeadLettered  *webhookscommand.RetryDeadLetteredCommand
	RunRetrySweep      *webhookscommand.RunRetrySweepCommand
}

type Queries struct {
	GetSubscription   *webhooksquery.GetSubscriptionQuery
	ListSubscriptions *webhooksquery.ListSubscriptionsQuery
	GetDelivery       *webhooksquery.GetDeliveryQuery
	ListDeliveries    *webhooksquery.ListDeliveriesQuery
	ListDeadLettered  *webhooksquery.ListDeadLetteredQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	deliveryReader webhooksquery.DeliveryReader
}

// WithDeliveryReader serves delivery queries from a reader other than the
// service, such as a read replica.
func WithDeliveryReader(reader webhooksquery.DeliveryReader) FacadeOption {
	return func(options *facadeOptions) {
		options.deliveryReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("webhooks: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	var deliveries webhooksquery.DeliveryReader = service
	if cfg.deliveryReader != nil {
		deliveries = cfg.deliveryReader
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateSubscription: webhookscommand.NewCreateSubscriptionCommand(service),
		UpdateSubscription: webhookscommand.NewUpdateSubscriptionCommand(service),
		DeleteSubscription: webhookscommand.NewDeleteSubscriptionCommand(service),
		RotateSecret:       webhookscommand.NewRotateSecretCommand(service),
		Publish:            webhookscommand.NewPublishCommand(service),
		RetryDelivery:      webhookscommand.NewRetryDeliveryCommand(service),
		RetryDeadLettered:  webhookscommand.NewRetryDeadLetteredCommand(service),
		RunRetrySweep:      webhookscommand.NewRunRetrySweepCommand(service),
	}
	facade.queries = Queries{
		GetSubscription:   webhooksquery.NewGetSubscriptionQuery(service),
		ListSubscriptions: webhooksquery.NewListSubscriptionsQuery(service),
		GetDelivery:       webhooksquery.NewGetDeliveryQuery(deliveries),
		ListDeliveries:    webhooksquery.NewListDeliveriesQuery(deliveries),
		ListDeadLettered:  webhooksquery.NewListDeadLetteredQuery(deliveries),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
