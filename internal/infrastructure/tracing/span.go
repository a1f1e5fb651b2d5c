package tracing

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/trace"
)

// isoMillis is the wire timestamp layout, always rendered in UTC.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Exception event naming
const (
	ExceptionEventName     = "exception"
	ExceptionTypeKey       = "exception.type"
	ExceptionMessageKey    = "exception.message"
	ExceptionStacktraceKey = "exception.stacktrace"
)

// SpanKind describes the relationship of a span to its remote peers.
type SpanKind int

const (
	SpanKindInternal SpanKind = iota
	SpanKindServer
	SpanKindClient
	SpanKindProducer
	SpanKindConsumer
)

func (k SpanKind) String() string {
	switch k {
	case SpanKindServer:
		return "server"
	case SpanKindClient:
		return "client"
	case SpanKindProducer:
		return "producer"
	case SpanKindConsumer:
		return "consumer"
	default:
		return "internal"
	}
}

// StatusCode is the outcome of a span.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unset"
	}
}

// Event is a timestamped annotation on a span.
type Event struct {
	Name       string
	Timestamp  time.Time
	Attributes Attributes
}

type eventJSON struct {
	Name       string     `json:"name"`
	Timestamp  string     `json:"timestamp"`
	Attributes Attributes `json:"attributes,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(eventJSON{
		Name:       e.Name,
		Timestamp:  formatTime(e.Timestamp),
		Attributes: e.Attributes,
	})
}

// spanEndHandler receives a span exactly once, after it ends.
type spanEndHandler interface {
	onSpanEnd(s *Span)
}

// Span records one traced operation. All methods are safe for concurrent use
// and are no-ops on a nil span or after End.
type Span struct {
	name     string
	service  string
	kind     SpanKind
	sc       SpanContext
	parent   trace.SpanID
	start    time.Time
	resource Attributes
	clock    clockz.Clock
	handler  spanEndHandler

	mu            sync.Mutex
	ended         bool
	end           time.Time
	status        StatusCode
	statusMessage string
	attrs         Attributes
	events        []Event
}

// Name returns the operation name.
func (s *Span) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Kind returns the span kind.
func (s *Span) Kind() SpanKind {
	if s == nil {
		return SpanKindInternal
	}
	return s.kind
}

// SpanContext returns the span's propagatable identity.
func (s *Span) SpanContext() SpanContext {
	if s == nil {
		return SpanContext{}
	}
	return s.sc
}

// ParentSpanID returns the parent span ID, invalid for roots.
func (s *Span) ParentSpanID() trace.SpanID {
	if s == nil {
		return trace.SpanID{}
	}
	return s.parent
}

// IsRecording reports whether the span still accepts mutations.
func (s *Span) IsRecording() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended
}

// SetStatus overwrites the status and message.
func (s *Span) SetStatus(code StatusCode, message string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.status = code
	s.statusMessage = message
}

// SetAttribute upserts one attribute. Values without an attribute form are
// stored as their fmt representation.
func (s *Span) SetAttribute(key string, value any) {
	if s == nil || key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	if s.attrs == nil {
		s.attrs = make(Attributes)
	}
	s.attrs[key] = toValue(value)
}

// SetAttributes upserts every entry of attrs.
func (s *Span) SetAttributes(attrs map[string]any) {
	if s == nil || len(attrs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	if s.attrs == nil {
		s.attrs = make(Attributes, len(attrs))
	}
	for k, v := range attrs {
		if k != "" {
			s.attrs[k] = toValue(v)
		}
	}
}

// AddEvent appends an event stamped with the current time.
func (s *Span) AddEvent(name string, attrs map[string]any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.appendEventLocked(name, convertAttributes(attrs))
}

// RecordError adds an exception event for err. It does not change the status.
func (s *Span) RecordError(err error) {
	if s == nil || err == nil {
		return
	}
	s.recordException(fmt.Sprintf("%T", err), err.Error(), string(debug.Stack()))
}

func (s *Span) recordPanic(recovered any, stack []byte) {
	s.recordException(fmt.Sprintf("%T", recovered), fmt.Sprint(recovered), string(stack))
}

func (s *Span) recordException(typ, message, stack string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.appendEventLocked(ExceptionEventName, Attributes{
		ExceptionTypeKey:       StringValue(typ),
		ExceptionMessageKey:    StringValue(message),
		ExceptionStacktraceKey: StringValue(stack),
	})
}

func (s *Span) appendEventLocked(name string, attrs Attributes) {
	s.events = append(s.events, Event{
		Name:       name,
		Timestamp:  s.clock.Now(),
		Attributes: attrs,
	})
}

// EndOption configures End.
type EndOption func(*endConfig)

type endConfig struct {
	timestamp time.Time
}

// WithEndTime overrides the end timestamp.
func WithEndTime(t time.Time) EndOption {
	return func(c *endConfig) { c.timestamp = t }
}

// End finishes the span. Only the first call has any effect.
func (s *Span) End(opts ...EndOption) {
	if s == nil {
		return
	}

	var cfg endConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.end = cfg.timestamp
	if s.end.IsZero() {
		s.end = s.clock.Now()
	}
	s.mu.Unlock()

	if s.handler != nil {
		s.handler.onSpanEnd(s)
	}
}

// SpanData is the immutable serialized snapshot of a span.
type SpanData struct {
	TraceID            string
	SpanID             string
	ParentSpanID       string
	OperationName      string
	ServiceName        string
	SpanKind           SpanKind
	StartTime          time.Time
	EndTime            time.Time
	Status             StatusCode
	StatusMessage      string
	Attributes         Attributes
	Events             []Event
	ResourceAttributes Attributes
}

// Duration returns EndTime - StartTime, or zero if the span never ended.
func (d SpanData) Duration() time.Duration {
	if d.EndTime.IsZero() {
		return 0
	}
	return d.EndTime.Sub(d.StartTime)
}

type spanDataJSON struct {
	TraceID            string     `json:"traceId"`
	SpanID             string     `json:"spanId"`
	ParentSpanID       *string    `json:"parentSpanId"`
	OperationName      string     `json:"operationName"`
	ServiceName        string     `json:"serviceName"`
	SpanKind           string     `json:"spanKind"`
	StartTime          string     `json:"startTime"`
	EndTime            string     `json:"endTime,omitempty"`
	DurationMs         *float64   `json:"durationMs,omitempty"`
	Status             string     `json:"status"`
	StatusMessage      string     `json:"statusMessage,omitempty"`
	Attributes         Attributes `json:"attributes,omitempty"`
	Events             []Event    `json:"events,omitempty"`
	ResourceAttributes Attributes `json:"resourceAttributes,omitempty"`
}

// MarshalJSON emits the ingestion wire shape: parentSpanId is null for
// roots and empty attributes or events are left out.
func (d SpanData) MarshalJSON() ([]byte, error) {
	out := spanDataJSON{
		TraceID:            d.TraceID,
		SpanID:             d.SpanID,
		OperationName:      d.OperationName,
		ServiceName:        d.ServiceName,
		SpanKind:           d.SpanKind.String(),
		StartTime:          formatTime(d.StartTime),
		Status:             d.Status.String(),
		StatusMessage:      d.StatusMessage,
		Attributes:         d.Attributes,
		Events:             d.Events,
		ResourceAttributes: d.ResourceAttributes,
	}
	if d.ParentSpanID != "" {
		parent := d.ParentSpanID
		out.ParentSpanID = &parent
	}
	if !d.EndTime.IsZero() {
		out.EndTime = formatTime(d.EndTime)
		ms := float64(d.Duration().Microseconds()) / 1000
		out.DurationMs = &ms
	}
	return sonic.Marshal(out)
}

// ToData snapshots the span.
func (s *Span) ToData() SpanData {
	if s == nil {
		return SpanData{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data := SpanData{
		TraceID:            s.sc.TraceID.String(),
		SpanID:             s.sc.SpanID.String(),
		OperationName:      s.name,
		ServiceName:        s.service,
		SpanKind:           s.kind,
		StartTime:          s.start,
		EndTime:            s.end,
		Status:             s.status,
		StatusMessage:      s.statusMessage,
		Attributes:         s.attrs.Clone(),
		ResourceAttributes: s.resource,
	}
	if s.parent.IsValid() {
		data.ParentSpanID = s.parent.String()
	}
	if len(s.events) > 0 {
		data.Events = append([]Event(nil), s.events...)
	}
	return data
}

func formatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func toValue(v any) Value {
	if val, ok := ValueOf(v); ok {
		return val
	}
	if err, ok := v.(error); ok {
		return StringValue(err.Error())
	}
	return StringValue(fmt.Sprintf("%v", v))
}

func convertAttributes(attrs map[string]any) Attributes {
	if len(attrs) == 0 {
		return nil
	}
	out := make(Attributes, len(attrs))
	for k, v := range attrs {
		if k != "" {
			out[k] = toValue(v)
		}
	}
	return out
}
