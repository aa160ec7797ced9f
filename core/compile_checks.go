package core

var (
	_ BackoffPolicy   = ExponentialBackoffPolicy{}
	_ MetricsRecorder = NopMetricsRecorder{}
)
