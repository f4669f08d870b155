package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/veloxdb/veloxdb"
)

// Metrics exports engine and HTTP metrics to Prometheus. It implements
// veloxdb.MetricsCollector, so the same instance is handed to veloxdb.New
// and to the Server.
type Metrics struct {
	registry *prometheus.Registry

	// OperationsTotal counts engine operations by kind and status.
	OperationsTotal *prometheus.CounterVec

	// OperationDurationSeconds measures engine operation latency.
	OperationDurationSeconds *prometheus.HistogramVec

	// BuildIterations records the k-means rounds of each successful build.
	BuildIterations prometheus.Histogram

	// SearchScanned records the vectors compared per successful search.
	SearchScanned *prometheus.HistogramVec

	// HTTPRequestsTotal counts requests by route and status code.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPDurationSeconds measures request latency by route.
	HTTPDurationSeconds *prometheus.HistogramVec

	// RateLimitRequestsTotal counts requests passing or rejected by the limiter.
	RateLimitRequestsTotal *prometheus.CounterVec

	// StoredVectors tracks the store size.
	StoredVectors prometheus.Gauge
}

// NewMetrics registers every collector on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veloxdb_operations_total",
				Help: "Total number of engine operations",
			},
			[]string{"op", "status"},
		),
		OperationDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "veloxdb_operation_duration_seconds",
				Help:    "Duration of engine operations",
				Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
			},
			[]string{"op"},
		),
		BuildIterations: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "veloxdb_build_iterations",
				Help:    "k-means rounds run per index build",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
			},
		),
		SearchScanned: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "veloxdb_search_scanned_vectors",
				Help:    "Vectors compared against the query per search",
				Buckets: prometheus.ExponentialBuckets(1, 4, 12),
			},
			[]string{"mode"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veloxdb_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"route", "code"},
		),
		HTTPDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "veloxdb_http_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		RateLimitRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veloxdb_rate_limit_requests_total",
				Help: "Requests seen by the rate limiter",
			},
			[]string{"status"},
		),
		StoredVectors: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "veloxdb_stored_vectors",
				Help: "Number of vectors in the store",
			},
		),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

var _ veloxdb.MetricsCollector = (*Metrics)(nil)

// RecordAdd implements veloxdb.MetricsCollector.
func (m *Metrics) RecordAdd(d time.Duration, err error) {
	m.observe("add", d, err)
}

// RecordBuild implements veloxdb.MetricsCollector.
func (m *Metrics) RecordBuild(_, iterations int, d time.Duration, err error) {
	m.observe("build", d, err)
	if err == nil {
		m.BuildIterations.Observe(float64(iterations))
	}
}

// RecordSearch implements veloxdb.MetricsCollector.
func (m *Metrics) RecordSearch(cluster, scanned int, d time.Duration, err error) {
	m.observe("search", d, err)
	if err != nil {
		return
	}
	mode := "ivf"
	if cluster < 0 {
		mode = "brute_force"
	}
	m.SearchScanned.WithLabelValues(mode).Observe(float64(scanned))
}

// RecordPersist implements veloxdb.MetricsCollector.
func (m *Metrics) RecordPersist(op string, d time.Duration, err error) {
	m.observe(op, d, err)
}

func (m *Metrics) observe(op string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.OperationsTotal.WithLabelValues(op, status).Inc()
	m.OperationDurationSeconds.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) recordHTTP(route string, code int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDurationSeconds.WithLabelValues(route).Observe(d.Seconds())
}
