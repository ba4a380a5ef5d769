// Package metrics exposes Prometheus collectors for the download pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vidrelay"

// Request outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeToolError     = "tool_error"
	OutcomeInvalidOutput = "invalid_output"
	OutcomeConfigError   = "config_error"
	OutcomeUploadError   = "upload_error"
	OutcomeError         = "error"
)

// Metrics holds the pipeline collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	uploadedBytes *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	scratchFree   prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Download requests by outcome.",
		},
		[]string{"outcome"},
	)

	// Downloads run from seconds to many minutes.
	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	m.uploadedBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes",
			Help:      "Size of files handed to an upload target.",
			Buckets:   prometheus.ExponentialBuckets(1<<20, 4, 8), // 1MiB .. 16GiB
		},
		[]string{"target"},
	)

	m.inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "in_flight",
		Help:      "Requests currently holding a download slot.",
	})

	m.scratchFree = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scratch_free_bytes",
		Help:      "Free space on the filesystem holding the scratch directory.",
	})

	m.registry.MustRegister(
		m.requestsTotal,
		m.stageDuration,
		m.uploadedBytes,
		m.inFlight,
		m.scratchFree,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveRequest counts a finished request.
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveUpload records the size of an uploaded file.
func (m *Metrics) ObserveUpload(target string, size int64) {
	if m == nil {
		return
	}
	m.uploadedBytes.WithLabelValues(target).Observe(float64(size))
}

// InFlight adjusts the in-flight gauge by delta.
func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.inFlight.Add(delta)
}

// ScratchFree records the free scratch space in bytes.
func (m *Metrics) ScratchFree(bytes int64) {
	if m == nil {
		return
	}
	m.scratchFree.Set(float64(bytes))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
