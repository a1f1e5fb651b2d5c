package loggy

import (
	"context"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/config"
	"github.com/loggy-dev/loggy-go/internal/infrastructure/tracing"
)

// Config is the SDK configuration.
type Config = config.Config

// Tracing types
type (
	Tracer        = tracing.Tracer
	Span          = tracing.Span
	SpanData      = tracing.SpanData
	SpanContext   = tracing.SpanContext
	SpanKind      = tracing.SpanKind
	StatusCode    = tracing.StatusCode
	Event         = tracing.Event
	Value         = tracing.Value
	Attributes    = tracing.Attributes
	TraceState    = tracing.TraceState
	Carrier       = tracing.Carrier
	MapCarrier    = tracing.MapCarrier
	HeaderCarrier = tracing.HeaderCarrier
	StartOption   = tracing.StartOption
	EndOption     = tracing.EndOption
)

const (
	SpanKindInternal = tracing.SpanKindInternal
	SpanKindServer   = tracing.SpanKindServer
	SpanKindClient   = tracing.SpanKindClient
	SpanKindProducer = tracing.SpanKindProducer
	SpanKindConsumer = tracing.SpanKindConsumer

	StatusUnset = tracing.StatusUnset
	StatusOK    = tracing.StatusOK
	StatusError = tracing.StatusError
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config { return *config.Default() }

// LoadConfigFile reads a YAML, TOML or JSON configuration file.
func LoadConfigFile(path string) (Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	return *cfg, nil
}

var (
	WithParent     = tracing.WithParent
	WithSpanKind   = tracing.WithSpanKind
	WithAttributes = tracing.WithAttributes
	WithStartTime  = tracing.WithStartTime
	WithEndTime    = tracing.WithEndTime

	ParseTraceparent  = tracing.ParseTraceparent
	FormatTraceparent = tracing.FormatTraceparent
	SpanFromContext   = tracing.SpanFromContext
	CorrelationIDs    = tracing.CorrelationIDs
)

// WithSpan runs fn inside a new span. An error from fn is recorded on the
// span and returned unchanged; a panic is recorded and re-raised.
func WithSpan[T any](ctx context.Context, tracer *Tracer, name string, fn func(context.Context) (T, error), opts ...StartOption) (T, error) {
	return tracing.WithSpan(ctx, tracer, name, fn, opts...)
}

// Do is WithSpan for functions without a result.
func Do(ctx context.Context, tracer *Tracer, name string, fn func(context.Context) error, opts ...StartOption) error {
	return tracing.Do(ctx, tracer, name, fn, opts...)
}
