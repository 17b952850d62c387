package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records one launcher run. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	entries          *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	extractDuration  prometheus.Histogram
	teardownFailures prometheus.Counter
	launches         *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "warboot",
				Subsystem: "extract",
				Name:      "entries_total",
				Help:      "Archive entries staged or skipped by the extractor.",
			},
			[]string{"rule", "result"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "warboot",
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Extraction cache lookups by result.",
			},
			[]string{"result"},
		),
		extractDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "warboot",
				Subsystem: "extract",
				Name:      "duration_seconds",
				Help:      "Time spent extracting archive entries.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		teardownFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "warboot",
				Subsystem: "lifecycle",
				Name:      "teardown_failures_total",
				Help:      "Teardown steps that failed and were logged.",
			},
		),
		launches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "warboot",
				Subsystem: "runtime",
				Name:      "launches_total",
				Help:      "Runtime launches by mode and exit code.",
			},
			[]string{"mode", "exit_code"},
		),
	}
	m.registry.MustRegister(m.entries, m.cacheLookups, m.extractDuration, m.teardownFailures, m.launches)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordEntry(rule string, staged bool) {
	if m == nil {
		return
	}
	result := "skipped"
	if staged {
		result = "staged"
	}
	m.entries.WithLabelValues(rule, result).Inc()
}

func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveExtraction(d time.Duration) {
	if m == nil {
		return
	}
	m.extractDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordTeardownFailure() {
	if m == nil {
		return
	}
	m.teardownFailures.Inc()
}

func (m *Metrics) RecordLaunch(mode string, exitCode int) {
	if m == nil {
		return
	}
	m.launches.WithLabelValues(mode, strconv.Itoa(exitCode)).Inc()
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
