// Package metrics implements plugin.MetricsRecorder against Prometheus,
// recording per-event outcome counters and hook-duration histograms the
// way the teacher's status manager recorded per-hook firing/success/
// failure, now against a metrics registry instead of a Kubernetes status
// subresource.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hookline/eventrouter/internal/plugin"
)

// Recorder implements plugin.MetricsRecorder against a Prometheus
// registry.
type Recorder struct {
	counters   *prometheus.CounterVec
	histograms *prometheus.HistogramVec
}

// NewRecorder creates a Recorder and registers its collectors on reg. Pass
// prometheus.DefaultRegisterer for process-wide metrics.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	counters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventrouter",
		Name:      "events_total",
		Help:      "Count of plugin-observed events, partitioned by caller-supplied labels.",
	}, []string{"name"})

	histograms := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eventrouter",
		Name:      "hook_duration_seconds",
		Help:      "Observed durations for plugin-reported operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"name"})

	if err := reg.Register(counters); err != nil {
		return nil, err
	}
	if err := reg.Register(histograms); err != nil {
		return nil, err
	}

	return &Recorder{counters: counters, histograms: histograms}, nil
}

// IncCounter implements plugin.MetricsRecorder. The registered vector has
// a single "name" label; name and any additional labels are joined into
// that label's value (name:key=value...) so callers don't need a fixed
// label schema.
func (r *Recorder) IncCounter(name string, labels map[string]string) {
	r.counters.WithLabelValues(withLabels(name, labels)).Inc()
}

// ObserveDuration implements plugin.MetricsRecorder.
func (r *Recorder) ObserveDuration(name string, labels map[string]string, d time.Duration) {
	r.histograms.WithLabelValues(withLabels(name, labels)).Observe(d.Seconds())
}

func withLabels(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	out := name
	for k, v := range labels {
		out += ":" + k + "=" + v
	}
	return out
}

var _ plugin.MetricsRecorder = (*Recorder)(nil)
