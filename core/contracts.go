package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// SubscriptionRegistry resolves the active subscriptions for an event and
// publish scope.
type SubscriptionRegistry interface {
	Match(ctx context.Context, event EventName, scopeID string) ([]Subscription, error)
}

type SubscriptionStore interface {
	SubscriptionRegistry
	Create(ctx context.Context, sub Subscription) (Subscription, error)
	Get(ctx context.Context, id string) (Subscription, error)
	List(ctx context.Context, filter SubscriptionFilter) (SubscriptionPage, error)
	Update(ctx context.Context, sub Subscription) (Subscription, error)
	Delete(ctx context.Context, id string) error
}

// DeliveryLedger persists delivery records. Update must only apply when the
// stored attempt count equals expectedAttempts and must return a
// DeliveryConflictError otherwise.
type DeliveryLedger interface {
	Create(ctx context.Context, delivery Delivery) (Delivery, error)
	Get(ctx context.Context, id string) (Delivery, error)
	Update(ctx context.Context, delivery Delivery, expectedAttempts int) (Delivery, error)
	List(ctx context.Context, filter DeliveryFilter) (DeliveryPage, error)
}

type TransportRequest struct {
	URL     string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
	// ResponseLimit bounds how many response bytes are read; zero reads all.
	ResponseLimit int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string][]string
	Body       []byte
}

// Transport performs one outbound HTTP POST. Non-2xx responses are returned
// as responses, not errors.
type Transport interface {
	Post(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// BackoffPolicy schedules the next retry after a failed attempt.
type BackoffPolicy interface {
	NextAttemptAt(attempts int, now time.Time) time.Time
}

// RetryHinter reads a receiver's requested retry time from a failed
// response, such as a 429 carrying Retry-After. The later of the hint and the
// backoff schedule wins.
type RetryHinter interface {
	RetryAt(resp TransportResponse, now time.Time) (time.Time, bool)
}

// SecretCipher seals subscription signing secrets before they are stored.
// Decrypt must accept values that were stored before a cipher was configured.
type SecretCipher interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
