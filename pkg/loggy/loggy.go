package loggy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/config"
	"github.com/loggy-dev/loggy-go/internal/infrastructure/logging"
	"github.com/loggy-dev/loggy-go/internal/infrastructure/monitoring"
	"github.com/loggy-dev/loggy-go/internal/infrastructure/tracing"
	"github.com/loggy-dev/loggy-go/internal/infrastructure/transport"
)

// Client wires the tracer, the logs and metrics signals, and the SDK's
// own metrics around one configuration.
type Client struct {
	cfg      config.Config
	logger   *zap.Logger
	app      *zap.Logger
	gatherer prometheus.Gatherer

	tracer   *tracing.Tracer
	remote   *logging.RemoteLogger
	metrics  *monitoring.Metrics
	recorder *monitoring.Recorder
	senders  map[string]*transport.Sender

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a client from cfg. Remote delivery is enabled only when
// cfg.Remote.Token is set; without it spans are still created and
// propagated but stay in process.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		lc, err := logging.FromConfig(cfg.Logging, false)
		if err != nil {
			return nil, err
		}
		if logger, err = logging.New(lc); err != nil {
			return nil, err
		}
	}

	c := &Client{
		cfg:     cfg,
		logger:  logger,
		metrics: monitoring.NewMetrics(o.registerer),
		senders: make(map[string]*transport.Sender),
	}
	if g, ok := o.registerer.(prometheus.Gatherer); ok {
		c.gatherer = g
	}

	if cfg.Remote.Token != "" {
		if err := c.buildSenders(o); err != nil {
			return nil, err
		}
	}

	flushInterval := cfg.Remote.FlushInterval.Std()
	tracerCfg := tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		BatchSize:      cfg.Remote.BatchSize,
		FlushInterval:  flushInterval,
		Observer:       c.metrics,
		Clock:          o.clock,
		Logger:         logger,
	}
	if s, ok := c.senders[config.SignalTraces]; ok {
		tracerCfg.Transport = s
	}
	c.tracer = tracing.New(tracerCfg)
	c.metrics.TrackActiveSpans(c.tracer.ActiveSpans)

	app := logger
	if s, ok := c.senders[config.SignalLogs]; ok {
		level, err := logging.ParseLevel(cfg.Logging.RemoteLevel)
		if err != nil {
			return nil, err
		}
		c.remote, err = logging.NewRemoteLogger(logging.RemoteLoggerConfig{
			Service:       cfg.Service.Name,
			Environment:   cfg.Service.Environment,
			Level:         level,
			Transport:     s,
			BatchSize:     cfg.Remote.BatchSize,
			FlushInterval: flushInterval,
			Observer:      c.metrics,
			Correlator:    tracing.CorrelationIDs,
			Clock:         o.clock,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		app = zap.New(zapcore.NewTee(logger.Core(), logging.NewCore(c.remote, nil)))
	}
	c.app = app

	if s, ok := c.senders[config.SignalMetrics]; ok {
		var err error
		c.recorder, err = monitoring.NewRecorder(monitoring.RecorderConfig{
			Service:       cfg.Service.Name,
			Transport:     s,
			BatchSize:     cfg.Remote.BatchSize,
			FlushInterval: flushInterval,
			Observer:      c.metrics,
			Clock:         o.clock,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("loggy client started",
		zap.String("service", cfg.Service.Name),
		zap.Bool("remote", cfg.Remote.Token != ""),
	)
	return c, nil
}

// NewFromEnv creates a client from LOGGY_* environment variables.
func NewFromEnv(opts ...Option) (*Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(*cfg, opts...)
}

func (c *Client) buildSenders(o *options) error {
	pemData, err := c.cfg.Remote.PublicKeyPEM()
	if err != nil {
		return err
	}
	var encryptor *transport.Encryptor
	if pemData != nil {
		encryptor, err = transport.NewEncryptorFromPEM(pemData, transport.Cipher(c.cfg.Remote.Cipher))
		if err != nil {
			return fmt.Errorf("failed to set up encryption: %w", err)
		}
	}

	for _, signal := range []string{config.SignalTraces, config.SignalLogs, config.SignalMetrics} {
		s, err := transport.NewSender(transport.SenderConfig{
			Endpoint:   c.cfg.Remote.SignalEndpoint(signal),
			Token:      c.cfg.Remote.Token,
			Encryptor:  encryptor,
			Compress:   c.cfg.Remote.Compress,
			RateLimit:  c.cfg.Remote.RateLimit,
			HTTPClient: o.httpClient,
			Clock:      o.clock,
			Logger:     c.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create %s sender: %w", signal, err)
		}
		c.senders[signal] = s
	}
	return nil
}

// Config returns the configuration the client was built from.
func (c *Client) Config() config.Config { return c.cfg }

// Tracer returns the client's tracer.
func (c *Client) Tracer() *Tracer { return c.tracer }

// Logger returns a zap logger that writes locally and, with remote delivery
// enabled, also ships entries to the logs endpoint. String fields named
// trace_id and span_id become the record's correlation IDs.
func (c *Client) Logger() *zap.Logger { return c.app }

// Remote returns the remote logger, or nil without remote delivery.
func (c *Client) Remote() *logging.RemoteLogger { return c.remote }

// Log ships one record to the logs endpoint. Trace correlation is read
// from ctx. It is a no-op without remote delivery.
func (c *Client) Log(ctx context.Context, level zapcore.Level, msg string, metadata map[string]any) {
	if c.remote == nil {
		return
	}
	c.remote.Log(ctx, level, msg, metadata)
}

// Metrics returns the SDK's own Prometheus metrics.
func (c *Client) Metrics() *monitoring.Metrics { return c.metrics }

// Recorder returns the request metrics recorder, or nil without remote
// delivery.
func (c *Client) Recorder() *monitoring.Recorder { return c.recorder }

// Middleware returns the Gin handlers for request metrics and tracing, in
// the order they should be installed.
func (c *Client) Middleware() []gin.HandlerFunc {
	mw := c.cfg.Middleware
	return []gin.HandlerFunc{
		monitoring.Middleware(c.metrics, c.recorder),
		tracing.HTTPMiddleware(c.tracer, tracing.MiddlewareConfig{
			IgnorePaths:         mw.IgnorePaths,
			CaptureRequestBody:  mw.CaptureBodies,
			CaptureResponseBody: mw.CaptureBodies,
			MaxBodySize:         mw.MaxBodySize,
		}),
	}
}

// MetricsHandler serves the SDK metrics in Prometheus format, or the JSON
// snapshot when the registerer cannot be gathered.
func (c *Client) MetricsHandler() gin.HandlerFunc {
	if c.gatherer == nil {
		return monitoring.StatsHandler(c.metrics)
	}
	return monitoring.Handler(c.gatherer)
}

// Flush ships every buffered signal now. A failed batch stays buffered
// and the error is informational.
func (c *Client) Flush(ctx context.Context) error {
	var errs []error
	if err := c.tracer.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if c.remote != nil {
		if err := c.remote.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.recorder != nil {
		if err := c.recorder.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown stops every flush loop and performs a final flush. Later calls
// return the first result.
func (c *Client) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		var errs []error
		if err := c.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if c.remote != nil {
			if err := c.remote.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if c.recorder != nil {
			if err := c.recorder.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		_ = c.logger.Sync()
		c.shutdownErr = errors.Join(errs...)
	})
	return c.shutdownErr
}
