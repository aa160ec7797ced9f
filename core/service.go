package core

import (
	"context"
	"crypto/rand"
	"maps"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	subscriptionStore SubscriptionStore
	registry          SubscriptionRegistry
	deliveryLedger    DeliveryLedger
	transport         Transport
	backoffPolicy     BackoffPolicy
	retryHinter       RetryHinter
	secrets           SecretGenerator
	jobEnqueuer       JobEnqueuer
	idGenerator       func() string
	clock             func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	SubscriptionStore SubscriptionStore
	Registry          SubscriptionRegistry
	DeliveryLedger    DeliveryLedger
	Transport         Transport
	BackoffPolicy     BackoffPolicy
	RetryHinter       RetryHinter
	JobEnqueuer       JobEnqueuer
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("webhooks", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("webhooks"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.idGenerator == nil {
		builder.idGenerator = newID
	}
	if builder.now == nil {
		builder.now = utcNow
	}
	if builder.secretSource == nil {
		builder.secretSource = rand.Reader
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if err := resolveRepositoryStores(&builder); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.registry == nil && builder.subscriptionStore != nil {
		builder.registry = builder.subscriptionStore
	}
	if builder.backoffPolicy == nil {
		builder.backoffPolicy = NewExponentialBackoffPolicy(finalConfig.Retry)
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		subscriptionStore: builder.subscriptionStore,
		registry:          builder.registry,
		deliveryLedger:    builder.deliveryLedger,
		transport:         builder.transport,
		backoffPolicy:     builder.backoffPolicy,
		retryHinter:       builder.retryHinter,
		secrets: SecretGenerator{
			Prefix: finalConfig.Secrets.Prefix,
			Bytes:  finalConfig.Secrets.Bytes,
			Source: builder.secretSource,
		},
		jobEnqueuer: builder.jobEnqueuer,
		idGenerator: builder.idGenerator,
		clock:       builder.now,
	}, nil
}

func resolveRepositoryStores(builder *serviceBuilder) error {
	if builder.repositoryFactory == nil {
		return nil
	}
	if builder.subscriptionStore != nil && builder.deliveryLedger != nil {
		return nil
	}
	var provider StoreProvider
	switch factory := builder.repositoryFactory.(type) {
	case RepositoryStoreFactory:
		built, err := factory.BuildStores(builder.persistenceClient)
		if err != nil {
			return err
		}
		provider = built
	case StoreProvider:
		provider = factory
	}
	if provider == nil {
		return nil
	}
	if builder.subscriptionStore == nil {
		builder.subscriptionStore = provider.SubscriptionStore()
	}
	if builder.deliveryLedger == nil {
		builder.deliveryLedger = provider.DeliveryLedger()
	}
	return nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		SubscriptionStore: s.subscriptionStore,
		Registry:          s.registry,
		DeliveryLedger:    s.deliveryLedger,
		Transport:         s.transport,
		BackoffPolicy:     s.backoffPolicy,
		RetryHinter:       s.retryHinter,
		JobEnqueuer:       s.jobEnqueuer,
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return s.reissueError(mapped, err)
}

// reissueError rebuilds a mapped error through the configured factory. The
// factory owns the envelope defaults; the mapped classification wins.
func (s *Service) reissueError(mapped *goerrors.Error, cause error) *goerrors.Error {
	if s.errorFactory == nil {
		return mapped
	}
	built := s.errorFactory(mapped.Message, mapped.Category)
	if built == nil {
		return mapped
	}
	built.Code = mapped.Code
	built.TextCode = mapped.TextCode
	built.ValidationErrors = mapped.ValidationErrors
	if len(mapped.Metadata) > 0 {
		metadata := maps.Clone(built.Metadata)
		if metadata == nil {
			metadata = map[string]any{}
		}
		maps.Copy(metadata, mapped.Metadata)
		built.Metadata = metadata
	}
	if built.RequestID == "" {
		built.RequestID = mapped.RequestID
	}
	switch {
	case mapped.Source != nil:
		built.Source = mapped.Source
	case cause != error(mapped):
		built.Source = cause
	}
	return built
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return utcNow()
	}
	return s.clock().UTC()
}

func (s *Service) newID() string {
	if s == nil || s.idGenerator == nil {
		return newID()
	}
	return s.idGenerator()
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func newID() string {
	return uuid.NewString()
}
