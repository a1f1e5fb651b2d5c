package tracing

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/loggy-dev/loggy-go/internal/infrastructure/transport"
	"github.com/loggy-dev/loggy-go/internal/shared/id"
)

// Resource attribute keys
const (
	ServiceNameKey           = "service.name"
	ServiceVersionKey        = "service.version"
	DeploymentEnvironmentKey = "deployment.environment"
	ServiceInstanceIDKey     = "service.instance.id"
	SDKNameKey               = "telemetry.sdk.name"

	SDKName            = "loggy-go"
	DefaultServiceName = "unknown_service"
	SpansSignal        = "spans"
)

// TracerConfig configures a Tracer.
type TracerConfig struct {
	ServiceName        string
	ServiceVersion     string
	Environment        string
	ResourceAttributes map[string]any

	// Transport enables remote delivery; nil keeps spans local
	Transport     transport.Transport
	BatchSize     int
	FlushInterval time.Duration
	Observer      transport.Observer

	Clock       clockz.Clock
	Logger      *zap.Logger
	IDGenerator *id.Generator
}

// Tracer creates spans, propagates their context, and ships ended spans.
type Tracer struct {
	service  string
	resource Attributes
	clock    clockz.Clock
	logger   *zap.Logger
	ids      *id.Generator
	batcher  *transport.Batcher[SpanData]
	active   registry

	hooksMu sync.RWMutex
	hooks   []func(SpanData)

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a new tracer instance. With a Transport configured the
// periodic flush loop starts immediately.
func New(cfg TracerConfig) *Tracer {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
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

	resource := convertAttributes(cfg.ResourceAttributes)
	if resource == nil {
		resource = make(Attributes)
	}
	resource[ServiceNameKey] = StringValue(cfg.ServiceName)
	if cfg.ServiceVersion != "" {
		resource[ServiceVersionKey] = StringValue(cfg.ServiceVersion)
	}
	if cfg.Environment != "" {
		resource[DeploymentEnvironmentKey] = StringValue(cfg.Environment)
	}
	if _, ok := resource[ServiceInstanceIDKey]; !ok {
		resource[ServiceInstanceIDKey] = StringValue(id.NewInstanceID())
	}
	resource[SDKNameKey] = StringValue(SDKName)

	t := &Tracer{
		service:  cfg.ServiceName,
		resource: resource,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With(zap.String("component", "tracer")),
		ids:      cfg.IDGenerator,
	}

	if cfg.Transport != nil {
		t.batcher = transport.NewBatcher[SpanData](cfg.Transport, transport.BatcherConfig{
			Signal:        SpansSignal,
			BatchSize:     cfg.BatchSize,
			FlushInterval: cfg.FlushInterval,
			Clock:         cfg.Clock,
			Logger:        cfg.Logger,
			Observer:      cfg.Observer,
		})
		t.batcher.Start()
	}

	return t
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string { return t.service }

// Resource returns a copy of the resource attributes.
func (t *Tracer) Resource() Attributes { return t.resource.Clone() }

// StartOption configures StartSpan.
type StartOption func(*startConfig)

type startConfig struct {
	parent    SpanContext
	hasParent bool
	kind      SpanKind
	attrs     map[string]any
	start     time.Time
}

// WithParent sets an explicit parent, overriding the one carried by ctx.
func WithParent(sc SpanContext) StartOption {
	return func(c *startConfig) {
		c.parent = sc
		c.hasParent = true
	}
}

// WithSpanKind sets the span kind; the default is internal.
func WithSpanKind(kind SpanKind) StartOption {
	return func(c *startConfig) { c.kind = kind }
}

// WithAttributes sets initial attributes.
func WithAttributes(attrs map[string]any) StartOption {
	return func(c *startConfig) {
		if c.attrs == nil {
			c.attrs = make(map[string]any, len(attrs))
		}
		for k, v := range attrs {
			c.attrs[k] = v
		}
	}
}

// WithStartTime overrides the start timestamp.
func WithStartTime(ts time.Time) StartOption {
	return func(c *startConfig) { c.start = ts }
}

// StartSpan starts a span and returns a context carrying it. The parent is
// taken from WithParent, else from the span or remote context in ctx; with
// neither the span roots a new trace.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...StartOption) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	var cfg startConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	parent := cfg.parent
	if !cfg.hasParent {
		parent = parentFromContext(ctx)
	}

	sc := SpanContext{
		SpanID:     t.ids.SpanID(),
		TraceFlags: trace.FlagsSampled,
	}
	var parentID trace.SpanID
	if parent.IsValid() {
		sc.TraceID = parent.TraceID
		sc.TraceFlags = parent.TraceFlags
		sc.TraceState = parent.TraceState
		parentID = parent.SpanID
	} else {
		sc.TraceID = t.ids.TraceID()
	}

	start := cfg.start
	if start.IsZero() {
		start = t.clock.Now()
	}

	span := &Span{
		name:     name,
		service:  t.service,
		kind:     cfg.kind,
		sc:       sc,
		parent:   parentID,
		start:    start,
		resource: t.resource,
		clock:    t.clock,
		handler:  t,
		attrs:    convertAttributes(cfg.attrs),
	}
	t.active.add(span)

	return ContextWithSpan(ctx, span), span
}

func parentFromContext(ctx context.Context) SpanContext {
	if span := SpanFromContext(ctx); span != nil {
		return span.SpanContext()
	}
	if sc, ok := RemoteSpanContextFromContext(ctx); ok {
		return sc
	}
	return SpanContext{}
}

func (t *Tracer) onSpanEnd(s *Span) {
	t.active.remove(s)
	data := s.ToData()

	t.hooksMu.RLock()
	hooks := t.hooks
	t.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(data)
	}

	t.logger.Debug("span ended",
		zap.String("trace_id", data.TraceID),
		zap.String("span_id", data.SpanID),
		zap.String("operation", data.OperationName),
		zap.Duration("duration", data.Duration()),
		zap.Stringer("status", data.Status),
	)

	if t.batcher != nil {
		t.batcher.Add(data)
	}
}

// OnSpanEnd registers a hook that receives every ended span's snapshot.
// Hooks run synchronously inside End and must not block.
func (t *Tracer) OnSpanEnd(hook func(SpanData)) {
	if hook == nil {
		return
	}
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()
	t.hooks = append(slices.Clone(t.hooks), hook)
}

// CurrentSpan returns the most recently started span that has not ended.
func (t *Tracer) CurrentSpan() *Span {
	return t.active.current()
}

// CurrentContext returns the context of CurrentSpan, if any.
func (t *Tracer) CurrentContext() (SpanContext, bool) {
	span := t.active.current()
	if span == nil {
		return SpanContext{}, false
	}
	return span.SpanContext(), true
}

// ActiveSpans returns the number of started spans that have not ended.
func (t *Tracer) ActiveSpans() int {
	return t.active.len()
}

// Inject writes the span context from ctx into carrier. Without a span in
// ctx it falls back to the remote parent in ctx, then to CurrentSpan.
func (t *Tracer) Inject(ctx context.Context, carrier Carrier) Carrier {
	if carrier == nil {
		carrier = MapCarrier{}
	}

	var sc SpanContext
	if ctx != nil {
		sc = parentFromContext(ctx)
	}
	if !sc.IsValid() {
		if current, ok := t.CurrentContext(); ok {
			sc = current
		}
	}
	return Inject(sc, carrier)
}

// Extract reads a remote parent from carrier.
func (t *Tracer) Extract(carrier Carrier) (SpanContext, bool) {
	return Extract(carrier)
}

// Pending returns the number of ended spans awaiting delivery.
func (t *Tracer) Pending() int {
	if t.batcher == nil {
		return 0
	}
	return t.batcher.Pending()
}

// Flush ships buffered spans now. It is a no-op without remote delivery.
// A failed batch stays buffered for the next flush.
func (t *Tracer) Flush(ctx context.Context) error {
	if t.batcher == nil {
		return nil
	}
	return t.batcher.Flush(ctx)
}

// Shutdown stops the flush loop, waits for in-flight flushes, and performs
// a final flush. Later calls return the first result.
func (t *Tracer) Shutdown(ctx context.Context) error {
	t.shutdownOnce.Do(func() {
		if t.batcher != nil {
			t.shutdownErr = t.batcher.Close(ctx)
		}
		if n := t.active.len(); n > 0 {
			t.logger.Debug("tracer shut down with unfinished spans", zap.Int("spans", n))
		}
	})
	return t.shutdownErr
}

// Context keys for span propagation
type contextKey int

const (
	spanKey contextKey = iota
	remoteKey
)

// ContextWithSpan returns a copy of ctx carrying span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanKey, span)
}

// SpanFromContext returns the span in ctx, or nil. All Span methods accept
// a nil receiver.
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	span, _ := ctx.Value(spanKey).(*Span)
	return span
}

// ContextWithRemoteSpanContext makes an extracted parent visible to StartSpan.
func ContextWithRemoteSpanContext(ctx context.Context, sc SpanContext) context.Context {
	sc.Remote = true
	return context.WithValue(ctx, remoteKey, sc)
}

// RemoteSpanContextFromContext returns the remote parent stored in ctx.
func RemoteSpanContextFromContext(ctx context.Context) (SpanContext, bool) {
	if ctx == nil {
		return SpanContext{}, false
	}
	sc, ok := ctx.Value(remoteKey).(SpanContext)
	return sc, ok && sc.IsValid()
}

// CorrelationIDs returns the trace and span IDs carried by ctx for log
// correlation, or empty strings.
func CorrelationIDs(ctx context.Context) (traceID, spanID string) {
	sc := SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		remote, ok := RemoteSpanContextFromContext(ctx)
		if !ok {
			return "", ""
		}
		sc = remote
	}
	return sc.TraceID.String(), sc.SpanID.String()
}
