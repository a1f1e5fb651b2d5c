package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Flush results used as the "result" label
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the SDK's own Prometheus metrics. It implements
// transport.Observer so every batcher reports into it.
type Metrics struct {
	// Pipeline metrics
	EnqueuedTotal *prometheus.CounterVec
	FlushedTotal  *prometheus.CounterVec
	RequeuedTotal *prometheus.CounterVec
	FlushesTotal  *prometheus.CounterVec
	FlushDuration *prometheus.HistogramVec
	Pending       *prometheus.GaugeVec

	// HTTP metrics for the instrumented application
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	factory    promauto.Factory
	activeOnce sync.Once

	// Snapshot for JSON API - track current values
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds running totals for the JSON stats API.
type Snapshot struct {
	RecordsEnqueued int64   `json:"recordsEnqueued"`
	RecordsFlushed  int64   `json:"recordsFlushed"`
	RecordsRequeued int64   `json:"recordsRequeued"`
	FailedFlushes   int64   `json:"failedFlushes"`
	TotalRequests   int64   `json:"totalRequests"`
	TotalErrors     int64   `json:"totalErrors"`
	UptimeSeconds   float64 `json:"uptimeSeconds"`
}

// NewMetrics creates the SDK metrics on reg. A nil reg creates unregistered
// collectors, which is useful when the host does not scrape.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),
		factory:   factory,

		// Pipeline metrics
		EnqueuedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loggy_records_enqueued_total",
				Help: "Total number of telemetry records buffered for delivery",
			},
			[]string{"signal"},
		),
		FlushedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loggy_records_flushed_total",
				Help: "Total number of telemetry records delivered",
			},
			[]string{"signal"},
		),
		RequeuedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loggy_records_requeued_total",
				Help: "Total number of telemetry records put back after a failed flush",
			},
			[]string{"signal"},
		),
		FlushesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loggy_flushes_total",
				Help: "Total number of flush attempts",
			},
			[]string{"signal", "result"},
		),
		FlushDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loggy_flush_duration_seconds",
				Help:    "Flush duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"signal"},
		),
		Pending: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "loggy_pending_records",
				Help: "Number of records waiting for the next flush",
			},
			[]string{"signal"},
		),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loggy_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loggy_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "loggy_uptime_seconds",
			Help: "Seconds since the SDK started",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// TrackActiveSpans exposes the number of unfinished spans as a gauge. Only
// the first call registers.
func (m *Metrics) TrackActiveSpans(count func() int) {
	m.activeOnce.Do(func() {
		m.factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "loggy_active_spans",
				Help: "Number of spans started but not yet ended",
			},
			func() float64 { return float64(count()) },
		)
	})
}

// RecordsEnqueued implements transport.Observer.
func (m *Metrics) RecordsEnqueued(signal string, n int) {
	m.EnqueuedTotal.WithLabelValues(signal).Add(float64(n))

	m.mu.Lock()
	m.snapshot.RecordsEnqueued += int64(n)
	m.mu.Unlock()
}

// FlushCompleted implements transport.Observer.
func (m *Metrics) FlushCompleted(signal string, records int, duration time.Duration, err error) {
	m.FlushDuration.WithLabelValues(signal).Observe(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.FlushesTotal.WithLabelValues(signal, ResultFailure).Inc()
		m.RequeuedTotal.WithLabelValues(signal).Add(float64(records))
		m.snapshot.FailedFlushes++
		m.snapshot.RecordsRequeued += int64(records)
		return
	}
	m.FlushesTotal.WithLabelValues(signal, ResultSuccess).Inc()
	m.FlushedTotal.WithLabelValues(signal).Add(float64(records))
	m.snapshot.RecordsFlushed += int64(records)
}

// PendingRecords implements transport.Observer.
func (m *Metrics) PendingRecords(signal string, n int) {
	m.Pending.WithLabelValues(signal).Set(float64(n))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, statusLabel(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status >= 400 {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// Snapshot returns the current running totals.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
