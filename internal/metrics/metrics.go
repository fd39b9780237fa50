// Package metrics exposes Prometheus instrumentation for stage runs, queue
// occupancy, and installs. Collectors live on a dedicated registry so tests
// and multiple daemons in one process never collide.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vrdl/internal/queue"
)

const namespace = "vrdl"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	queueItems    *prometheus.GaugeVec
	installs      *prometheus.CounterVec
}

// New builds a registry with all vrdl collectors plus Go runtime metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage runs by stage and result",
		}, []string{"stage", "result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Stage run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2.5, 10), // 1s up to ~1.5h
		}, []string{"stage"}),
		queueItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_items",
			Help:      "Queue items by status",
		}, []string{"status"}),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "installs_total",
			Help:      "Device installs by result",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.stageRuns,
		m.stageDuration,
		m.queueItems,
		m.installs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, status := range queue.AllStatuses() {
		m.queueItems.WithLabelValues(string(status)).Set(0)
	}
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveStage records one finished stage run.
func (m *Metrics) ObserveStage(stage, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageRuns.WithLabelValues(stage, result).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveInstall records one finished install.
func (m *Metrics) ObserveInstall(result string) {
	if m == nil {
		return
	}
	m.installs.WithLabelValues(result).Inc()
}

// SetQueueCounts replaces the per-status gauges. Statuses absent from counts
// are reported as zero.
func (m *Metrics) SetQueueCounts(counts map[queue.Status]int) {
	if m == nil {
		return
	}
	for _, status := range queue.AllStatuses() {
		m.queueItems.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
