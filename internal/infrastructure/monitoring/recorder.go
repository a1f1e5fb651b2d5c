package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/transport"
)

// MetricsSignal is the payload key for request metric batches.
const MetricsSignal = "metrics"

// RequestMetric is one HTTP request observation on the wire. Aggregation
// happens server side.
type RequestMetric struct {
	Service       string  `json:"service"`
	Method        string  `json:"method"`
	Path          string  `json:"path"`
	StatusCode    int     `json:"statusCode"`
	DurationMs    float64 `json:"durationMs"`
	RequestBytes  int64   `json:"requestBytes"`
	ResponseBytes int64   `json:"responseBytes"`
	Timestamp     string  `json:"timestamp"`
	TraceID       string  `json:"traceId,omitempty"`
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	Service       string
	Transport     transport.Transport
	BatchSize     int
	FlushInterval time.Duration
	Observer      transport.Observer
	Clock         clockz.Clock
	Logger        *zap.Logger
}

// Recorder ships request metrics to the metrics endpoint.
type Recorder struct {
	service string
	clock   clockz.Clock
	batcher *transport.Batcher[RequestMetric]
}

// NewRecorder creates a recorder and starts its flush loop.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Transport == nil {
		return nil, errors.New("metrics recorder requires a transport")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockz.RealClock
	}

	r := &Recorder{
		service: cfg.Service,
		clock:   cfg.Clock,
		batcher: transport.NewBatcher[RequestMetric](cfg.Transport, transport.BatcherConfig{
			Signal:        MetricsSignal,
			BatchSize:     cfg.BatchSize,
			FlushInterval: cfg.FlushInterval,
			Clock:         cfg.Clock,
			Logger:        cfg.Logger,
			Observer:      cfg.Observer,
		}),
	}
	r.batcher.Start()
	return r, nil
}

// Record enqueues m, filling in service and timestamp when unset.
func (r *Recorder) Record(m RequestMetric) {
	if m.Service == "" {
		m.Service = r.service
	}
	if m.Timestamp == "" {
		m.Timestamp = r.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	}
	r.batcher.Add(m)
}

// Pending returns the number of metrics awaiting delivery.
func (r *Recorder) Pending() int {
	return r.batcher.Pending()
}

// Flush ships buffered metrics now.
func (r *Recorder) Flush(ctx context.Context) error {
	return r.batcher.Flush(ctx)
}

// Close stops the flush loop and ships what is left.
func (r *Recorder) Close(ctx context.Context) error {
	return r.batcher.Close(ctx)
}
