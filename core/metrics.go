package core

import "context"

// Metric names emitted by the client and transport layers. Tags carry the
// dimension values (operation, method, status, status_code).
const (
	MetricClientOperations  = "pylon.client.operations.total"
	MetricClientDurationMS  = "pylon.client.operation_duration_ms"
	MetricTransportRequests = "pylon.transport.requests.total"
	MetricTransportRetries  = "pylon.transport.retries.total"
)

// NopMetricsRecorder discards every observation. It backs clients built
// without a recorder so call sites never nil-check.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// CloneTags copies metric tags so recorders never share caller maps.
func CloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
