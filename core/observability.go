package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const metricPrefix = "webhooks."

var operationTagKeys = []string{"event", "scope_id", "subscription_id", "status"}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// observeOperation emits one log line plus a counter and a latency histogram
// for a service operation.
func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	elapsed := s.now().Sub(startedAt)

	logFields := cloneFields(fields)
	logFields["operation"] = operation
	logFields["outcome"] = outcome
	logFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		logFields["error"] = err.Error()
	}

	tags := map[string]string{
		"operation": operation,
		"outcome":   outcome,
	}
	for _, key := range operationTagKeys {
		if value := tagValue(fields[key]); value != "" {
			tags[key] = value
		}
	}

	s.recordCounter(ctx, metricPrefix+operation+".total", 1, tags)
	s.recordHistogram(ctx, metricPrefix+operation+".duration_ms", float64(elapsed.Milliseconds()), tags)

	if err != nil {
		s.logError(ctx, operation+" failed", logFields)
		return
	}
	s.logInfo(ctx, operation+" succeeded", logFields)
}

// observeAttempt records the outcome of a single HTTP attempt.
func (s *Service) observeAttempt(ctx context.Context, delivery Delivery, elapsed time.Duration, attemptErr error) {
	tags := map[string]string{
		"event":  string(delivery.Event),
		"status": string(delivery.Status),
	}
	if delivery.StatusCode != nil {
		tags["status_code"] = fmt.Sprint(*delivery.StatusCode)
	}
	s.recordCounter(ctx, metricPrefix+"delivery.attempts.total", 1, tags)
	s.recordHistogram(ctx, metricPrefix+"delivery.attempt.duration_ms", float64(elapsed.Milliseconds()), tags)
	if delivery.Status == DeliveryStatusDeadLetter {
		s.recordCounter(ctx, metricPrefix+"delivery.dead_letter.total", 1, map[string]string{"event": string(delivery.Event)})
	}

	fields := map[string]any{
		"delivery_id":     delivery.ID,
		"subscription_id": delivery.SubscriptionID,
		"event":           string(delivery.Event),
		"status":          string(delivery.Status),
		"attempts":        delivery.Attempts,
		"duration_ms":     elapsed.Milliseconds(),
	}
	if delivery.StatusCode != nil {
		fields["status_code"] = *delivery.StatusCode
	}
	if attemptErr != nil {
		fields["error"] = attemptErr.Error()
		s.logWarn(ctx, "webhook delivery attempt failed", fields)
		return
	}
	s.logDebug(ctx, "webhook delivery attempt succeeded", fields)
}

func (s *Service) logDebug(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "debug", message, fields)
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "info", message, fields)
}

func (s *Service) logWarn(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "warn", message, fields)
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "error", message, fields)
}

func (s *Service) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logger.Debug(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func tagValue(value any) string {
	if value == nil {
		return ""
	}
	out := strings.TrimSpace(fmt.Sprint(value))
	if out == "<nil>" {
		return ""
	}
	return out
}

func cloneTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for key, value := range tags {
		out[key] = value
	}
	return out
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		out[key] = value
	}
	return out
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	operation = strings.ReplaceAll(operation, " ", "_")
	operation = strings.ReplaceAll(operation, "-", "_")
	return operation
}
