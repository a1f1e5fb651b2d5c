package logging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/transport"
	"github.com/loggy-dev/loggy-go/internal/shared/id"
)

// LogsSignal is the payload key for log batches.
const LogsSignal = "logs"

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Correlator returns the trace and span IDs carried by ctx, or empty strings.
type Correlator func(ctx context.Context) (traceID, spanID string)

// Entry is one log record on the wire.
type Entry struct {
	ID          string          `json:"id"`
	Level       string          `json:"level"`
	Message     string          `json:"message"`
	Timestamp   string          `json:"timestamp"`
	Service     string          `json:"service"`
	Environment string          `json:"environment,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	TraceID     string          `json:"traceId,omitempty"`
	SpanID      string          `json:"spanId,omitempty"`
}

// RemoteLoggerConfig configures a RemoteLogger.
type RemoteLoggerConfig struct {
	Service     string
	Environment string
	Tags        []string
	// Level is the minimum level shipped
	Level zapcore.Level

	Transport     transport.Transport
	BatchSize     int
	FlushInterval time.Duration
	Observer      transport.Observer

	Correlator  Correlator
	Clock       clockz.Clock
	Logger      *zap.Logger
	IDGenerator *id.Generator
}

// RemoteLogger ships application log records to the logs endpoint through
// the shared batching pipeline.
type RemoteLogger struct {
	service     string
	environment string
	tags        []string
	level       zapcore.Level
	correlate   Correlator
	clock       clockz.Clock
	logger      *zap.Logger
	ids         *id.Generator
	batcher     *transport.Batcher[Entry]
}

// NewRemoteLogger creates a remote logger and starts its flush loop.
func NewRemoteLogger(cfg RemoteLoggerConfig) (*RemoteLogger, error) {
	if cfg.Transport == nil {
		return nil, errors.New("remote logger requires a transport")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockz.RealClock
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = id.Default()
	}

	r := &RemoteLogger{
		service:     cfg.Service,
		environment: cfg.Environment,
		tags:        append([]string(nil), cfg.Tags...),
		level:       cfg.Level,
		correlate:   cfg.Correlator,
		clock:       cfg.Clock,
		logger:      cfg.Logger.With(zap.String("component", "remote-logger")),
		ids:         cfg.IDGenerator,
		batcher: transport.NewBatcher[Entry](cfg.Transport, transport.BatcherConfig{
			Signal:        LogsSignal,
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

// Enabled reports whether records at level are shipped.
func (r *RemoteLogger) Enabled(level zapcore.Level) bool {
	return level >= r.level
}

func (r *RemoteLogger) Debug(ctx context.Context, msg string, metadata map[string]any) {
	r.Log(ctx, zapcore.DebugLevel, msg, metadata)
}

func (r *RemoteLogger) Info(ctx context.Context, msg string, metadata map[string]any) {
	r.Log(ctx, zapcore.InfoLevel, msg, metadata)
}

func (r *RemoteLogger) Warn(ctx context.Context, msg string, metadata map[string]any) {
	r.Log(ctx, zapcore.WarnLevel, msg, metadata)
}

func (r *RemoteLogger) Error(ctx context.Context, msg string, metadata map[string]any) {
	r.Log(ctx, zapcore.ErrorLevel, msg, metadata)
}

// Log enqueues one record. It never blocks on the network.
func (r *RemoteLogger) Log(ctx context.Context, level zapcore.Level, msg string, metadata map[string]any) {
	if !r.Enabled(level) {
		return
	}
	var traceID, spanID string
	if ctx != nil && r.correlate != nil {
		traceID, spanID = r.correlate(ctx)
	}
	r.enqueue(level, msg, metadata, r.clock.Now(), traceID, spanID)
}

func (r *RemoteLogger) enqueue(level zapcore.Level, msg string, metadata map[string]any, ts time.Time, traceID, spanID string) {
	entry := Entry{
		ID:          r.ids.RecordID(),
		Level:       levelName(level),
		Message:     msg,
		Timestamp:   ts.UTC().Format(timestampLayout),
		Service:     r.service,
		Environment: r.environment,
		Tags:        r.tags,
		TraceID:     traceID,
		SpanID:      spanID,
	}

	if len(metadata) > 0 {
		raw, err := sonic.Marshal(metadata)
		if err != nil {
			r.logger.Warn("dropping unserializable log metadata",
				zap.String("message", msg), zap.Error(err))
		} else {
			entry.Metadata = raw
		}
	}

	r.batcher.Add(entry)
}

// Pending returns the number of records awaiting delivery.
func (r *RemoteLogger) Pending() int {
	return r.batcher.Pending()
}

// Flush ships buffered records now.
func (r *RemoteLogger) Flush(ctx context.Context) error {
	return r.batcher.Flush(ctx)
}

// Close stops the flush loop and ships what is left.
func (r *RemoteLogger) Close(ctx context.Context) error {
	return r.batcher.Close(ctx)
}

// levelName maps zap levels onto the four wire levels.
func levelName(level zapcore.Level) string {
	switch {
	case level <= zapcore.DebugLevel:
		return "debug"
	case level == zapcore.InfoLevel:
		return "info"
	case level == zapcore.WarnLevel:
		return "warn"
	default:
		return "error"
	}
}
