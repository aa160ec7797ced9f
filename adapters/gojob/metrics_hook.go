package gojob

import (
	"context"

	"github.com/goliatone/go-webhooks/core"
)

const (
	MetricJobRuns     = "webhooks.job.runs.total"
	MetricJobDuration = "webhooks.job.duration.ms"
)

// MetricsHook counts job outcomes per job id and records run durations.
type MetricsHook struct {
	Recorder core.MetricsRecorder
}

func NewMetricsHook(recorder core.MetricsRecorder) *MetricsHook {
	return &MetricsHook{Recorder: recorder}
}

func (h *MetricsHook) OnStart(context.Context, core.JobWorkerEvent) {}

func (h *MetricsHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.record(ctx, event, "success")
}

func (h *MetricsHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.record(ctx, event, "failure")
}

func (h *MetricsHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	if h == nil || h.Recorder == nil {
		return
	}
	h.Recorder.IncCounter(ctx, MetricJobRuns, 1, map[string]string{
		"operation": jobID(event.Message),
		"outcome":   "retry_scheduled",
	})
}

func (h *MetricsHook) record(ctx context.Context, event core.JobWorkerEvent, outcome string) {
	if h == nil || h.Recorder == nil {
		return
	}
	tags := map[string]string{
		"operation": jobID(event.Message),
		"outcome":   outcome,
	}
	h.Recorder.IncCounter(ctx, MetricJobRuns, 1, tags)
	h.Recorder.ObserveHistogram(ctx, MetricJobDuration, float64(event.Duration.Milliseconds()), tags)
}

var _ core.JobWorkerHook = (*MetricsHook)(nil)
