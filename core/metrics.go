package core

import "context"

// NopMetricsRecorder discards metrics. Recorders receive a counter
// "clientcore.<operation>.total" and a histogram
// "clientcore.<operation>.duration_ms" per observed operation, where
// operation is "http.request" or "auth.login", "auth.refresh" and the other
// auth flows. Tags carry operation, status and, on failure, the error kind.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// cloneTags copies tags so recorders may keep them.
func cloneTags(tags map[string]string) map[string]string {
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
