// Package metrics exposes pipeline counters over Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. Counters are plain atomics so hot
// pipeline paths never touch the Prometheus client; the registry reads them
// lazily on scrape.
type Metrics struct {
	// Frame pipeline counters
	FramesRead    atomic.Uint64
	FramesSampled atomic.Uint64
	FramesDropped atomic.Uint64
	ReadErrors    atomic.Uint64

	// Detector counters
	DetectorCalls    atomic.Uint64
	DetectorFailures atomic.Uint64
	VehiclesDetected atomic.Uint64

	// Alert counters
	AlertsCreated    atomic.Uint64
	AlertsSuppressed atomic.Uint64

	// Feed lifecycle
	ActiveFeeds atomic.Int64
	FeedsFailed atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		load func() float64
	}{
		{"trackv_frames_read_total", "Total frames read from video sources",
			func() float64 { return float64(m.FramesRead.Load()) }},
		{"trackv_frames_sampled_total", "Total frames forwarded to the detector",
			func() float64 { return float64(m.FramesSampled.Load()) }},
		{"trackv_frames_dropped_total", "Total frames skipped by sampling",
			func() float64 { return float64(m.FramesDropped.Load()) }},
		{"trackv_read_errors_total", "Total video source read errors",
			func() float64 { return float64(m.ReadErrors.Load()) }},
		{"trackv_detector_calls_total", "Total inference requests issued",
			func() float64 { return float64(m.DetectorCalls.Load()) }},
		{"trackv_detector_failures_total", "Total inference requests that failed",
			func() float64 { return float64(m.DetectorFailures.Load()) }},
		{"trackv_vehicles_detected_total", "Total vehicles detected across all frames",
			func() float64 { return float64(m.VehiclesDetected.Load()) }},
		{"trackv_alerts_created_total", "Total alerts created",
			func() float64 { return float64(m.AlertsCreated.Load()) }},
		{"trackv_alerts_suppressed_total", "Total alerts suppressed by deduplication",
			func() float64 { return float64(m.AlertsSuppressed.Load()) }},
		{"trackv_active_feeds", "Number of feeds currently running",
			func() float64 { return float64(m.ActiveFeeds.Load()) }},
		{"trackv_feeds_failed_total", "Total feeds that terminated in a failed state",
			func() float64 { return float64(m.FeedsFailed.Load()) }},
	}

	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			g.load,
		))
	}
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
