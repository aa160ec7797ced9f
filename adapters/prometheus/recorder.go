package prometheus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-webhooks/core"
)

// DefaultLabelKeys is the fixed label set every webhook metric carries.
// Identifiers such as subscription_id are left out to bound cardinality.
var DefaultLabelKeys = []string{"operation", "outcome", "event", "status", "status_code"}

var DefaultDurationBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

type Config struct {
	Namespace string
	LabelKeys []string
	Buckets   []float64
}

// Recorder maps service counters and histograms onto Prometheus vectors,
// creating each vector the first time its name is seen.
type Recorder struct {
	registerer promclient.Registerer
	namespace  string
	labelKeys  []string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*promclient.CounterVec
	histograms map[string]*promclient.HistogramVec
	failures   int
}

func NewRecorder(registerer promclient.Registerer, cfg Config) *Recorder {
	if registerer == nil {
		registerer = promclient.DefaultRegisterer
	}
	labels := cfg.LabelKeys
	if len(labels) == 0 {
		labels = DefaultLabelKeys
	}
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = DefaultDurationBuckets
	}
	return &Recorder{
		registerer: registerer,
		namespace:  sanitize(cfg.Namespace),
		labelKeys:  append([]string(nil), labels...),
		buckets:    append([]float64(nil), buckets...),
		counters:   map[string]*promclient.CounterVec{},
		histograms: map[string]*promclient.HistogramVec{},
	}
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec, err := r.counter(name)
	if err != nil {
		r.recordFailure()
		return
	}
	vec.WithLabelValues(r.labelValues(tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec, err := r.histogram(name)
	if err != nil {
		r.recordFailure()
		return
	}
	vec.WithLabelValues(r.labelValues(tags)...).Observe(value)
}

// RegistrationFailures counts metrics dropped because their vector could not
// be registered.
func (r *Recorder) RegistrationFailures() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

func (r *Recorder) counter(name string) (*promclient.CounterVec, error) {
	metric := sanitize(name)
	if metric == "" {
		return nil, fmt.Errorf("prometheus: metric name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[metric]; ok {
		return vec, nil
	}
	vec := promclient.NewCounterVec(promclient.CounterOpts{
		Namespace: r.namespace,
		Name:      metric,
		Help:      "Webhook counter " + strings.TrimSpace(name) + ".",
	}, r.labelKeys)
	if err := r.registerer.Register(vec); err != nil {
		var already promclient.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*promclient.CounterVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	r.counters[metric] = vec
	return vec, nil
}

func (r *Recorder) histogram(name string) (*promclient.HistogramVec, error) {
	metric := sanitize(name)
	if metric == "" {
		return nil, fmt.Errorf("prometheus: metric name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[metric]; ok {
		return vec, nil
	}
	vec := promclient.NewHistogramVec(promclient.HistogramOpts{
		Namespace: r.namespace,
		Name:      metric,
		Help:      "Webhook histogram " + strings.TrimSpace(name) + ".",
		Buckets:   r.buckets,
	}, r.labelKeys)
	if err := r.registerer.Register(vec); err != nil {
		var already promclient.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*promclient.HistogramVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	r.histograms[metric] = vec
	return vec, nil
}

func (r *Recorder) labelValues(tags map[string]string) []string {
	values := make([]string, len(r.labelKeys))
	for i, key := range r.labelKeys {
		values[i] = strings.TrimSpace(tags[key])
	}
	return values
}

func (r *Recorder) recordFailure() {
	r.mu.Lock()
	r.failures++
	r.mu.Unlock()
}

// sanitize turns dotted service metric names into Prometheus names.
func sanitize(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
	for i, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_', ch == ':':
			b.WriteRune(ch)
		case ch >= '0' && ch <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(ch)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
