package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultDeliveryTimeout     = 30 * time.Second
	DefaultMaxAttempts         = 5
	DefaultResponseBodyLimit   = 1000
	DefaultUserAgent           = "go-webhooks/1.0"
	DefaultMaxConcurrency      = 16
	DefaultRetryInitialBackoff = 30 * time.Second
	DefaultRetryMaxBackoff     = time.Hour
	DefaultRetryFactor         = 2.0
	DefaultRetryBatchSize      = 100
	DefaultAttemptLeaseGrace   = 30 * time.Second
	DefaultPageLimit           = 50
	DefaultMaxPageLimit        = 500
	DefaultSecretPrefix        = "whsec_"
	DefaultSecretBytes         = 32
)

type DeliveryConfig struct {
	Timeout           time.Duration `koanf:"timeout" mapstructure:"timeout"`
	MaxAttempts       int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	ResponseBodyLimit int           `koanf:"response_body_limit" mapstructure:"response_body_limit"`
	UserAgent         string        `koanf:"user_agent" mapstructure:"user_agent"`
	MaxConcurrency    int           `koanf:"max_concurrency" mapstructure:"max_concurrency"`
}

type RetryConfig struct {
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
	Factor         float64       `koanf:"factor" mapstructure:"factor"`
	BatchSize      int           `koanf:"batch_size" mapstructure:"batch_size"`
}

type PaginationConfig struct {
	DefaultLimit int `koanf:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `koanf:"max_limit" mapstructure:"max_limit"`
}

type SecretsConfig struct {
	Prefix string `koanf:"prefix" mapstructure:"prefix"`
	Bytes  int    `koanf:"bytes" mapstructure:"bytes"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	Delivery    DeliveryConfig   `koanf:"delivery" mapstructure:"delivery"`
	Retry       RetryConfig      `koanf:"retry" mapstructure:"retry"`
	Pagination  PaginationConfig `koanf:"pagination" mapstructure:"pagination"`
	Secrets     SecretsConfig    `koanf:"secrets" mapstructure:"secrets"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "webhooks",
		Delivery: DeliveryConfig{
			Timeout:           DefaultDeliveryTimeout,
			MaxAttempts:       DefaultMaxAttempts,
			ResponseBodyLimit: DefaultResponseBodyLimit,
			UserAgent:         DefaultUserAgent,
			MaxConcurrency:    DefaultMaxConcurrency,
		},
		Retry: RetryConfig{
			InitialBackoff: DefaultRetryInitialBackoff,
			MaxBackoff:     DefaultRetryMaxBackoff,
			Factor:         DefaultRetryFactor,
			BatchSize:      DefaultRetryBatchSize,
		},
		Pagination: PaginationConfig{
			DefaultLimit: DefaultPageLimit,
			MaxLimit:     DefaultMaxPageLimit,
		},
		Secrets: SecretsConfig{
			Prefix: DefaultSecretPrefix,
			Bytes:  DefaultSecretBytes,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Delivery.Timeout <= 0 {
		return fmt.Errorf("core: delivery.timeout must be positive")
	}
	if c.Delivery.MaxAttempts <= 0 {
		return fmt.Errorf("core: delivery.max_attempts must be positive")
	}
	if c.Delivery.ResponseBodyLimit <= 0 {
		return fmt.Errorf("core: delivery.response_body_limit must be positive")
	}
	if strings.TrimSpace(c.Delivery.UserAgent) == "" {
		return fmt.Errorf("core: delivery.user_agent is required")
	}
	if c.Delivery.MaxConcurrency < 0 {
		return fmt.Errorf("core: delivery.max_concurrency must not be negative")
	}
	if c.Retry.InitialBackoff <= 0 || c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("core: retry backoff bounds are invalid")
	}
	if c.Retry.Factor < 1 {
		return fmt.Errorf("core: retry.factor must be at least 1")
	}
	if c.Retry.BatchSize <= 0 {
		return fmt.Errorf("core: retry.batch_size must be positive")
	}
	if c.Pagination.DefaultLimit <= 0 || c.Pagination.MaxLimit < c.Pagination.DefaultLimit {
		return fmt.Errorf("core: pagination limits are invalid")
	}
	if c.Secrets.Bytes < 16 {
		return fmt.Errorf("core: secrets.bytes must be at least 16")
	}
	return nil
}

func (c Config) pageLimit(requested int) int {
	if requested <= 0 {
		return c.Pagination.DefaultLimit
	}
	if requested > c.Pagination.MaxLimit {
		return c.Pagination.MaxLimit
	}
	return requested
}
