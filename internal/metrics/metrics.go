// Package metrics exposes Prometheus collectors for schedule generation,
// background saves, mirroring and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "emprestimos"

type Metrics struct {
	registry *prometheus.Registry

	schedules   *prometheus.CounterVec
	saves       *prometheus.CounterVec
	syncItems   *prometheus.CounterVec
	syncRows    *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, alongside the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		schedules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedules_generated_total",
			Help:      "Installment schedules generated, by strategy and whether the flat fallback was used.",
		}, []string{"mode", "fallback"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_saves_total",
			Help:      "Background persistence tasks by outcome.",
		}, []string{"task", "result"}),
		syncItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_items_total",
			Help:      "Sync queue items processed, by table, operation and outcome.",
		}, []string{"table", "operation", "result"}),
		syncRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_rows_total",
			Help:      "Rows moved by bulk upload and download, by table and direction.",
		}, []string{"table", "direction"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.schedules, m.saves, m.syncItems, m.syncRows, m.httpLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The recorders below accept a nil receiver so callers can run without metrics.

func (m *Metrics) ScheduleGenerated(mode string, fellBack bool) {
	if m == nil {
		return
	}
	m.schedules.WithLabelValues(mode, strconv.FormatBool(fellBack)).Inc()
}

func (m *Metrics) SaveFinished(task string, err error) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(task, result(err)).Inc()
}

func (m *Metrics) SyncItem(table, operation string, err error) {
	if m == nil {
		return
	}
	m.syncItems.WithLabelValues(table, operation, result(err)).Inc()
}

func (m *Metrics) SyncRows(table, direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.syncRows.WithLabelValues(table, direction).Add(float64(n))
}

func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
