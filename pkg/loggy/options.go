package loggy

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Option customizes a Client.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	clock      clockz.Clock
	registerer prometheus.Registerer
	httpClient *http.Client
}

func defaultOptions() *options {
	return &options{
		clock:      clockz.RealClock,
		registerer: prometheus.NewRegistry(),
	}
}

// WithLogger sets the logger used for SDK diagnostics and as the local half
// of Client.Logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock used for timestamps and flush timers.
func WithClock(clock clockz.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithRegisterer registers the SDK metrics on reg instead of a private
// registry. A nil reg leaves the metrics unregistered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithHTTPClient sets the HTTP client used for ingestion requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}
