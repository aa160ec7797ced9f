package webhooks

import (
	"github.com/goliatone/go-webhooks/core"
	"github.com/goliatone/go-webhooks/ratelimit"
	"github.com/goliatone/go-webhooks/transport"
)

type Config = core.Config
type DeliveryConfig = core.DeliveryConfig
type RetryConfig = core.RetryConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type SubscriptionStore = core.SubscriptionStore
type SubscriptionRegistry = core.SubscriptionRegistry
type DeliveryLedger = core.DeliveryLedger
type Transport = core.Transport
type BackoffPolicy = core.BackoffPolicy
type RetryHinter = core.RetryHinter
type MetricsRecorder = core.MetricsRecorder
type JobEnqueuer = core.JobEnqueuer

type EventName = core.EventName
type Subscription = core.Subscription
type Delivery = core.Delivery
type DeliveryStatus = core.DeliveryStatus

type CreateSubscriptionRequest = core.CreateSubscriptionRequest
type UpdateSubscriptionRequest = core.UpdateSubscriptionRequest

type PublishResult = core.PublishResult
type RetryResult = core.RetryResult
type SweepStats = core.SweepStats

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithErrorFactory         = core.WithErrorFactory
	WithErrorMapper          = core.WithErrorMapper
	WithPersistenceClient    = core.WithPersistenceClient
	WithRepositoryFactory    = core.WithRepositoryFactory
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithSubscriptionStore    = core.WithSubscriptionStore
	WithSubscriptionRegistry = core.WithSubscriptionRegistry
	WithDeliveryLedger       = core.WithDeliveryLedger
	WithTransport            = core.WithTransport
	WithBackoffPolicy        = core.WithBackoffPolicy
	WithRetryHinter          = core.WithRetryHinter
	WithSecretSource         = core.WithSecretSource
	WithJobEnqueuer          = core.WithJobEnqueuer
	WithIDGenerator          = core.WithIDGenerator
	WithClock                = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewService builds a delivery service that posts over the HTTP transport and
// honours receiver Retry-After hints. The transport client times out after
// cfg.Delivery.Timeout. Both defaults can be replaced with WithTransport and
// WithRetryHinter.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	all := make([]Option, 0, len(opts)+2)
	all = append(all,
		core.WithTransport(transport.NewHTTPTransport(nil, transport.WithTimeout(cfg.Delivery.Timeout))),
		core.WithRetryHinter(ratelimit.NewRetryAfterHinter()),
	)
	all = append(all, opts...)
	return core.NewService(cfg, all...)
}
